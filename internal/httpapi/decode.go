package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

func decodeJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

package middleware

import (
	"encoding/json"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

type errorBody struct {
	Message string `json:"message"`
}

// WriteError writes err as {"message": ...} with the status [goToken.StatusCode] picks.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(goToken.StatusCode(err))
	_ = json.NewEncoder(w).Encode(errorBody{Message: goToken.PublicMessage(err)})
}

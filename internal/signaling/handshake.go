package signaling

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var errMissingIdentity = errors.New("missing name or id")

// handshake is the identity claim carried on the upgrade request.
type handshake struct {
	Name string `validate:"required,max=128"`
	ID   string `validate:"required,max=256"`
}

func parseHandshake(q url.Values) (handshake, error) {
	h := handshake{
		Name: strings.TrimSpace(q.Get("name")),
		ID:   strings.TrimSpace(q.Get("id")),
	}
	if h.Name == "" || h.ID == "" {
		return handshake{}, errMissingIdentity
	}
	if err := validate.Struct(h); err != nil {
		return handshake{}, err
	}
	return h, nil
}

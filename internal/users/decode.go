package users

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const maxBodyBytes = 1 << 20

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

type credentialsRequest struct {
	Email    string
	Password string
	Name     string
}

// decodeCredentials parses register and login bodies; login simply ignores
// the name field.
func decodeCredentials(r *http.Request) (req credentialsRequest, err error) {
	body, err := readBody(r)
	if err != nil {
		return req, errors.Wrap(err, "read body")
	}

	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var target *string
		switch key {
		case "email":
			target = &req.Email
		case "password":
			target = &req.Password
		case "name":
			target = &req.Name
		default:
			return d.Skip()
		}
		v, err := d.Str()
		*target = v
		return err
	})
	if err != nil {
		return req, errors.Wrap(err, "decode credentials")
	}
	return req, nil
}

type updateRequest struct {
	Name  *string
	Email *string
	Roles []string
}

// decodeUpdate parses partial user updates. Absent fields stay nil so the
// service can tell "not provided" from "set to empty".
func decodeUpdate(r *http.Request) (req updateRequest, err error) {
	body, err := readBody(r)
	if err != nil {
		return req, errors.Wrap(err, "read body")
	}

	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := d.Str()
			req.Name = &v
			return err
		case "email":
			v, err := d.Str()
			req.Email = &v
			return err
		case "roles":
			req.Roles = []string{}
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				req.Roles = append(req.Roles, v)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "decode update")
	}
	return req, nil
}

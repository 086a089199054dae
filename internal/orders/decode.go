package orders

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/avetra/ordergate/internal/domain/order"
)

// maxBodyBytes caps request bodies well above any legitimate order payload.
const maxBodyBytes = 1 << 20

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

type createOrderRequest struct {
	Items []order.Item
	Total decimal.Decimal
}

// decodeCreateOrder parses the order creation body. Both totalAmount and
// total_amount are accepted for the amount field; the value is parsed as a
// decimal so fractional cents survive intact.
func decodeCreateOrder(r *http.Request) (req createOrderRequest, err error) {
	body, err := readBody(r)
	if err != nil {
		return req, errors.Wrap(err, "read body")
	}

	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item order.Item
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "product":
						v, err := d.Str()
						item.Product = v
						return err
					case "quantity":
						v, err := d.Int()
						item.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "totalAmount", "total_amount":
			num, err := d.Num()
			if err != nil {
				return err
			}
			req.Total, err = decimal.NewFromString(num.String())
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "decode order")
	}
	return req, nil
}

// decodeUpdateStatus parses the {"status": "..."} body.
func decodeUpdateStatus(r *http.Request) (order.Status, error) {
	body, err := readBody(r)
	if err != nil {
		return "", errors.Wrap(err, "read body")
	}

	var status string
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode status")
	}
	if status == "" {
		return "", errors.New("status is required")
	}
	return order.Status(status), nil
}

package recharge

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lakay-digital/recharge-relay/internal/domain"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

// KeyPolicy selects what makes two deliveries "the same" recharge.
type KeyPolicy string

const (
	// KeyPolicyOrder keys on the order id (checkout id when absent). A corrected
	// amount for the same order is blocked.
	KeyPolicyOrder KeyPolicy = "order"
	// KeyPolicyOrderPhoneAmount also salts with phone and amount. A corrected amount
	// or phone produces a new key and a new charge.
	KeyPolicyOrderPhoneAmount KeyPolicy = "order_phone_amount"
)

func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch p := KeyPolicy(strings.TrimSpace(s)); p {
	case "":
		return KeyPolicyOrder, nil
	case KeyPolicyOrder, KeyPolicyOrderPhoneAmount:
		return p, nil
	}
	return "", fmt.Errorf("unknown idempotency key policy %q", s)
}

// keyNamespace scopes the UUIDv5 keys to this service.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:recharge-relay:idempotency"))

// DeriveKey returns a stable UUIDv5 key for req under policy. The same input always
// yields the same key, which doubles as the provider's customIdentifier.
func DeriveKey(policy KeyPolicy, req domain.RechargeRequest) (lockstore.Key, error) {
	var name string
	switch {
	case req.OrderID != "":
		name = "order:" + req.OrderID
	case req.CheckoutID != "":
		name = "checkout:" + req.CheckoutID
	default:
		return "", fmt.Errorf("cannot derive idempotency key: no order or checkout id")
	}

	switch policy {
	case KeyPolicyOrder, "":
	case KeyPolicyOrderPhoneAmount:
		name += "|phone:" + string(req.Phone) + "|amount:" + req.Amount.String()
	default:
		return "", fmt.Errorf("unknown idempotency key policy %q", policy)
	}
	return lockstore.Key(uuid.NewSHA1(keyNamespace, []byte(name)).String()), nil
}

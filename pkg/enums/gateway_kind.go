package enums

import "fmt"

// GatewayKind names the payment processor behind a mirror row.
type GatewayKind string

const (
	GatewayKindStripe GatewayKind = "stripe"
	GatewayKindSquare GatewayKind = "square"
)

var validGatewayKinds = []GatewayKind{
	GatewayKindStripe,
	GatewayKindSquare,
}

// String implements fmt.Stringer.
func (g GatewayKind) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayKind.
func (g GatewayKind) IsValid() bool {
	for _, candidate := range validGatewayKinds {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayKind converts raw input into a GatewayKind.
func ParseGatewayKind(value string) (GatewayKind, error) {
	for _, candidate := range validGatewayKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway kind %q", value)
}

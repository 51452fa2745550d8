package types

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAddressValidityProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("well-formed addresses are valid", prop.ForAll(
		func(addr string) bool {
			return IsValidAddress(addr)
		},
		gen.RegexMatch(`^0x[0-9a-fA-F]{40}$`),
	))

	properties.Property("validity is case-insensitive", prop.ForAll(
		func(addr string) bool {
			return IsValidAddress("0x"+strings.ToUpper(addr[2:])) &&
				IsValidAddress(NormalizeAddress(addr))
		},
		gen.RegexMatch(`^0x[0-9a-fA-F]{40}$`),
	))

	properties.Property("wrong-length hex strings are invalid", prop.ForAll(
		func(addr string) bool {
			return !IsValidAddress(addr)
		},
		gen.OneGenOf(
			gen.RegexMatch(`^0x[0-9a-f]{1,39}$`),
			gen.RegexMatch(`^0x[0-9a-f]{41,50}$`),
		),
	))

	properties.Property("non-hex characters are rejected", prop.ForAll(
		func(prefix string, bad rune) bool {
			addr := "0x" + prefix + string(bad) + strings.Repeat("0", 39-len(prefix))
			return !IsValidAddress(addr)
		},
		gen.RegexMatch(`^[0-9a-f]{0,39}$`),
		gen.RuneRange('g', 'z'),
	))

	properties.TestingRun(t)
}

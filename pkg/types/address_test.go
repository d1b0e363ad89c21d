package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	line2 := "Unit 4"
	addr := Address{
		Line1:      "12 Harbor Way",
		Line2:      &line2,
		City:       "Oakland",
		State:      "CA",
		PostalCode: "94607",
		Country:    "US",
	}

	value, err := addr.Value()
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, decoded.Scan(value))
	require.Equal(t, addr, decoded)
}

func TestAddressScanNilIsZero(t *testing.T) {
	var decoded Address
	require.NoError(t, decoded.Scan(nil))
	require.True(t, decoded.IsZero())
}

func TestAddressValueRequiresLine1(t *testing.T) {
	_, err := Address{City: "Oakland", PostalCode: "94607"}.Value()
	require.Error(t, err)
}

func TestAddressScanEscapedQuotes(t *testing.T) {
	addr := Address{
		Line1:      `5 "The Docks"`,
		City:       "Lisbon",
		State:      "",
		PostalCode: "1100",
		Country:    "PT",
	}

	value, err := addr.Value()
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, decoded.Scan(value))
	require.Equal(t, addr.Line1, decoded.Line1)
	require.Equal(t, "PT", decoded.Country)
}

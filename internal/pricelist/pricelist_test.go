package pricelist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV_ValidRows(t *testing.T) {
	input := "name,unit,price,sku\ncement,kg,12.50,SKU-1\nbrick,pcs,0.75,SKU-2\n"
	rows, rejected, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, rows, 2)
	assert.Equal(t, "cement", rows[0].RawName)
	assert.Equal(t, "kg", rows[0].Unit)
	assert.Equal(t, 12.5, rows[0].Price)
	assert.Equal(t, "SKU-1", rows[0].SKU)
}

func TestParseCSV_RejectsRowsMissingRequiredFields(t *testing.T) {
	input := "name,unit\ncement,kg\n,kg\nbrick,\n"
	rows, rejected, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[0].Reason, "name")
	assert.Contains(t, rejected[1].Reason, "unit")
}

func TestParseCSV_MissingRequiredColumnFailsWholeFile(t *testing.T) {
	input := "name,price\ncement,12.50\n"
	_, _, err := ParseCSV(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit")
}

func TestParseCSV_InvalidPriceRejectsOnlyThatRow(t *testing.T) {
	input := "name,unit,price\ncement,kg,not-a-number\nbrick,pcs,1.00\n"
	rows, rejected, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "invalid price")
}

func TestParseCSV_HeaderCaseAndWhitespaceInsensitive(t *testing.T) {
	input := " Name , Unit \ncement,kg\n"
	rows, rejected, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, rows, 1)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, _, err := Parse(strings.NewReader("x"), SourceFormat("pdf"))
	require.Error(t, err)
}

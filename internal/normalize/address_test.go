package normalize

import "testing"

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"12 Oak St, Newark, NJ", "12 oak st, newark, nj"},
		{"  12  OAK  ST,  Newark,  NJ ", "12 oak st, newark, nj"},
		{"12\tOak St,\nNewark, NJ", "12 oak st, newark, nj"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeAddress(tt.raw); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want AddressParts
	}{
		{
			"12 Oak St, Newark, NJ 07102",
			AddressParts{StreetNumber: "12", Street: "Oak St", City: "Newark", State: "NJ", Zip: "07102"},
		},
		{
			"45A Maple Ave Unit 3, Elizabeth, NJ, 07201",
			AddressParts{StreetNumber: "45A", Street: "Maple Ave", Unit: "3", City: "Elizabeth", State: "NJ", Zip: "07201"},
		},
		{
			"100 Broad St Apt B, Newark, NJ",
			AddressParts{StreetNumber: "100", Street: "Broad St", Unit: "B", City: "Newark", State: "NJ"},
		},
		{
			"Lot 7 Block 12", // no commas, no leading number pattern match
			AddressParts{Street: "Lot 7 Block 12"},
		},
		{
			"",
			AddressParts{},
		},
	}

	for _, tt := range tests {
		got := ParseAddress(tt.raw)
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecurityActiveOn(t *testing.T) {
	sec := Security{
		ID:       "AAPL",
		Listed:   Date(2010, time.January, 4),
		Delisted: Date(2020, time.June, 30),
	}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"before listing", Date(2009, time.December, 31), false},
		{"listing day", Date(2010, time.January, 4), true},
		{"mid life", Date(2015, time.March, 2), true},
		{"delisting day", Date(2020, time.June, 30), true},
		{"after delisting", Date(2020, time.July, 1), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sec.ActiveOn(tc.date))
		})
	}

	perpetual := Security{ID: "SPY", Listed: Date(1993, time.January, 29)}
	assert.True(t, perpetual.ActiveOn(Date(2026, time.January, 2)))
}

func TestFundamentalReportValidate(t *testing.T) {
	ok := FundamentalReport{
		SecurityID: "AAPL",
		PeriodEnd:  Date(2024, time.March, 30),
		FiledAt:    Date(2024, time.May, 2),
		Values:     map[string]float64{FieldRevenue: 90e9},
	}
	assert.NoError(t, ok.Validate())

	sameDay := ok
	sameDay.FiledAt = sameDay.PeriodEnd
	assert.NoError(t, sameDay.Validate())

	backwards := ok
	backwards.FiledAt = Date(2024, time.March, 1)
	err := backwards.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReport))

	assert.Error(t, FundamentalReport{PeriodEnd: ok.PeriodEnd, FiledAt: ok.FiledAt}.Validate())
}

func TestPanelRowField(t *testing.T) {
	row := PanelRow{
		SecurityID: "AAPL",
		AsOfDate:   Date(2024, time.June, 3),
		HasReport:  true,
		Fields:     map[string]float64{FieldAssets: 350e9},
	}

	assert.Equal(t, Valid(350e9), row.Field(FieldAssets))
	assert.Equal(t, Invalid(), row.Field(FieldCapex))

	bare := PanelRow{SecurityID: "NEWCO", AsOfDate: row.AsOfDate}
	assert.Equal(t, Invalid(), bare.Field(FieldAssets))
}

func TestMidnight(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	stamp := time.Date(2024, time.July, 1, 22, 15, 0, 0, loc)
	assert.Equal(t, Date(2024, time.July, 2), Midnight(stamp))
}

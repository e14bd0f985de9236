package character

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-9

func TestCalculateExp_Empty(t *testing.T) {
	p := CalculateExp(nil, day("2024-03-01"))
	assert.Empty(t, p.Records)
	assert.Zero(t, p.TotalExp)
	assert.Zero(t, p.PotentialBonus)
}

func TestCalculateExp_BaseOnly(t *testing.T) {
	p := CalculateExp([]Record{{Date: day("2024-03-01"), Minutes: 90}}, day("2024-04-01"))

	require.Len(t, p.Records, 1)
	assert.InDelta(t, 82.5, p.Records[0].BaseExp, delta)
	assert.Zero(t, p.Records[0].BonusExp)
	assert.InDelta(t, 82.5, p.TotalExp, delta)
	assert.Zero(t, p.PotentialBonus)
}

func TestCalculateExp_StreakAndExpiry(t *testing.T) {
	// Unsorted on purpose.
	records := []Record{
		{Date: day("2024-03-08"), Minutes: 120},
		{Date: day("2024-03-01"), Minutes: 60},
		{Date: day("2024-03-02"), Minutes: 30},
	}

	p := CalculateExp(records, day("2024-03-09"))

	require.Len(t, p.Records, 3)
	assert.Equal(t, day("2024-03-01"), p.Records[0].Date)

	// 60 min: 55 base, no streak.
	assert.InDelta(t, 55, p.Records[0].BaseExp, delta)
	assert.InDelta(t, 0, p.Records[0].BonusExp, delta)
	// 30 min a day later: 27.5 base, 55 * 0.4 bonus.
	assert.InDelta(t, 27.5, p.Records[1].BaseExp, delta)
	assert.InDelta(t, 22, p.Records[1].BonusExp, delta)
	// 120 min six and seven days on: streak expired.
	assert.InDelta(t, 110, p.Records[2].BaseExp, delta)
	assert.InDelta(t, 0, p.Records[2].BonusExp, delta)

	assert.InDelta(t, 214.5, p.TotalExp, delta)
	// Tomorrow's session would get 110 * 0.4.
	assert.InDelta(t, 44, p.PotentialBonus, delta)
}

func TestCalculateExp_BonusCompounds(t *testing.T) {
	records := []Record{
		{Date: day("2024-03-01"), Minutes: 60},
		{Date: day("2024-03-02"), Minutes: 60},
		{Date: day("2024-03-03"), Minutes: 60},
	}

	p := CalculateExp(records, day("2024-03-20"))

	// Second: 55 * 0.4 = 22.
	assert.InDelta(t, 22, p.Records[1].BonusExp, delta)
	// Third: 55 * 0.3 + (55 + 22) * 0.4 = 16.5 + 30.8.
	assert.InDelta(t, 47.3, p.Records[2].BonusExp, delta)
	assert.InDelta(t, 55*3+22+47.3, p.TotalExp, delta)
	assert.Zero(t, p.PotentialBonus)
}

func TestCalculateExp_SameDay(t *testing.T) {
	records := []Record{
		{Date: day("2024-03-01"), Minutes: 60},
		{Date: day("2024-03-01"), Minutes: 60},
	}

	p := CalculateExp(records, day("2024-03-01"))

	assert.InDelta(t, 27.5, p.Records[1].BonusExp, delta)
	// Latest record is today, so the potential bonus is for tomorrow:
	// 55 * 0.4 + 82.5 * 0.4.
	assert.InDelta(t, 55, p.PotentialBonus, delta)
}

func TestCalculateExp_PotentialToday(t *testing.T) {
	records := []Record{{Date: day("2024-03-01"), Minutes: 60}}

	// Today is two days after the record: 55 * 0.3.
	p := CalculateExp(records, time.Date(2024, 3, 3, 22, 30, 0, 0, time.FixedZone("x", 2*60*60)))
	assert.InDelta(t, 16.5, p.PotentialBonus, delta)
}

func TestCalculateExp_BoundaryDay(t *testing.T) {
	records := []Record{
		{Date: day("2024-03-01"), Minutes: 60},
		{Date: day("2024-03-06"), Minutes: 0},
	}

	p := CalculateExp(records, day("2024-03-30"))

	// Five days apart still counts, at 0.5 - 0.5 = 0.
	assert.InDelta(t, 0, p.Records[1].BonusExp, delta)
}

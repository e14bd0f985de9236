package character

import (
	"sort"
	"time"
)

// Experience tuning.
const (
	ExpPerHour          = 55.0
	StreakMaxDailyBonus = 0.5
	MaxBonusDays        = 5

	dailyDegradation = StreakMaxDailyBonus / MaxBonusDays
)

// ScoredRecord is a record with its computed experience.
type ScoredRecord struct {
	Record
	BaseExp  float64
	BonusExp float64
}

// Progress is the experience summary of one skill.
type Progress struct {
	Records        []ScoredRecord // sorted by date
	TotalExp       float64
	PotentialBonus float64 // bonus a session would earn next
}

// CalculateExp scores records in date order.
//
// Each record earns ExpPerHour per hour practiced. It also earns a streak
// bonus from every earlier record at most MaxBonusDays before it: that
// record's base plus bonus, times StreakMaxDailyBonus minus dailyDegradation
// per day between them. PotentialBonus is the bonus a session would earn
// today, or tomorrow when the latest record is already today.
func CalculateExp(records []Record, today time.Time) Progress {
	scored := make([]ScoredRecord, len(records))
	for i, r := range records {
		scored[i] = ScoredRecord{Record: r}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Date.Before(scored[j].Date)
	})

	var (
		p      = Progress{Records: scored}
		streak []*ScoredRecord
	)
	for i := range scored {
		r := &scored[i]
		date := civilDate(r.Date)
		r.BaseExp = float64(r.Minutes) / 60 * ExpPerHour

		streak = dropExpired(streak, date)
		r.BonusExp = streakBonus(streak, date)
		p.TotalExp += r.BaseExp + r.BonusExp

		streak = append(streak, r)
	}

	next := civilDate(today)
	if n := len(scored); n > 0 && civilDate(scored[n-1].Date).Equal(next) {
		next = next.AddDate(0, 0, 1)
	}
	streak = dropExpired(streak, next)
	p.PotentialBonus = streakBonus(streak, next)
	return p
}

// dropExpired removes leading records more than MaxBonusDays before date.
// streak is ordered by date.
func dropExpired(streak []*ScoredRecord, date time.Time) []*ScoredRecord {
	for len(streak) > 0 && daysBetween(streak[0].Date, date) > MaxBonusDays {
		streak = streak[1:]
	}
	return streak
}

func streakBonus(streak []*ScoredRecord, date time.Time) float64 {
	var bonus float64
	for _, s := range streak {
		multiplier := StreakMaxDailyBonus - dailyDegradation*float64(daysBetween(s.Date, date))
		bonus += (s.BaseExp + s.BonusExp) * multiplier
	}
	return bonus
}

func daysBetween(from, to time.Time) int {
	return int(civilDate(to).Sub(civilDate(from)).Hours() / 24)
}

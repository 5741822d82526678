package agent

import (
	"math/rand/v2"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/config"
)

// DelayPolicy maps reply length to a randomized "typing" pause.
type DelayPolicy struct {
	ShortChars  int
	MediumChars int
	Short       [2]time.Duration // [min, max) below ShortChars
	Medium      [2]time.Duration // [min, max) below MediumChars
	Long        [2]time.Duration // [min, max) otherwise
}

// DelayPolicyFromConfig builds a policy from the reply settings.
func DelayPolicyFromConfig(rc config.ReplyConfig) DelayPolicy {
	return DelayPolicy{
		ShortChars:  rc.ShortChars,
		MediumChars: rc.MediumChars,
		Short:       msRange(rc.ShortMs),
		Medium:      msRange(rc.MediumMs),
		Long:        msRange(rc.LongMs),
	}
}

func msRange(ms []int) [2]time.Duration {
	var r [2]time.Duration
	if len(ms) > 0 {
		r[0] = time.Duration(ms[0]) * time.Millisecond
		r[1] = r[0]
	}
	if len(ms) > 1 {
		r[1] = time.Duration(ms[1]) * time.Millisecond
	}
	return r
}

// For returns the pause before sending a reply of n characters.
// randN must return a value in [0, n); nil uses math/rand.
func (p DelayPolicy) For(n int, randN func(n int64) int64) time.Duration {
	tier := p.Long
	switch {
	case n < p.ShortChars:
		tier = p.Short
	case n < p.MediumChars:
		tier = p.Medium
	}
	span := tier[1] - tier[0]
	if span <= 0 {
		return tier[0]
	}
	if randN == nil {
		randN = rand.Int64N
	}
	return tier[0] + time.Duration(randN(int64(span)))
}

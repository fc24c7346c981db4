package bidder

import "time"

// Clock es la única fuente de tiempo del loop. En tests se sustituye por un
// fake para que las esperas terminen al instante.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

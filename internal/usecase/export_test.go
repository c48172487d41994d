package usecase

import "time"

func SetClock(p *Polls, now func() time.Time) {
	p.now = now
}

package tokens

import (
	"time"

	"github.com/thejerf/abtime"
)

var epoch = time.Unix(1800000000, 0).UTC()

func manualClock() *abtime.ManualTime {
	return abtime.NewManualAtTime(epoch)
}

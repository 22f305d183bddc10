package metrics

import (
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Disk counter label values
const (
	CounterOther      = "other"
	CounterMedia      = "media"
	CounterPredictive = "predictive_failure"
)

// ObserveDisks publishes the error counters of each parsed disk, replacing
// the disks of any earlier archive. Counters that are absent or not numeric
// are skipped.
func (c *Collector) ObserveDisks(disks []types.DiskParameters) {
	c.DiskErrors.Reset()
	for _, d := range disks {
		c.DisksAnalyzed.Inc()

		device := d.DeviceID.String()
		slot := d.EnclosureSlot()

		for counter, raw := range map[string]string{
			CounterOther:      d.OtherErrors,
			CounterMedia:      d.MediaErrors,
			CounterPredictive: d.PredictiveFailures,
		} {
			value, ok := counterValue(raw)
			if !ok {
				continue
			}
			c.DiskErrors.WithLabelValues(device, slot, counter).Set(value)
		}
	}
}

func counterValue(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := MustNew(reg)

	o.ReminderCreated()
	o.ReminderCreated()
	o.ReminderDelivered("dispatch")
	o.ReminderDelivered("recovery")
	o.ReminderDelivered("recovery")
	o.DeliveryFailed()
	o.ObserveDelivery(20 * time.Millisecond)
	o.SetArmedTimers(5)
	o.RemindersPurged(3)
	o.RemindersPurged(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.delivered.WithLabelValues("dispatch")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.delivered.WithLabelValues("recovery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.deliveryFailures))
	assert.Equal(t, 5.0, testutil.ToFloat64(o.armedTimers))
	assert.Equal(t, 3.0, testutil.ToFloat64(o.purged))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "remindbot_scheduler_armed_timers")
	assert.Contains(t, names, "remindbot_reminder_delivery_duration_seconds")
}

func TestNilObserverIsNoop(t *testing.T) {
	var o *Observer

	assert.NotPanics(t, func() {
		o.ReminderCreated()
		o.ReminderDelivered("dispatch")
		o.DeliveryFailed()
		o.ObserveDelivery(time.Second)
		o.SetArmedTimers(1)
		o.RemindersPurged(1)
	})
}

func TestMustNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustNew(reg)

	assert.Panics(t, func() { MustNew(reg) })
}

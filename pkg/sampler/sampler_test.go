package sampler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldnav/pkg/sensor"
	"fieldnav/pkg/tracker"
)

type fakeSource struct {
	mu       sync.Mutex
	onPos    func(sensor.Position)
	onErr    func(error)
	watches  int
	unsubs   int
	watchErr error
}

func (f *fakeSource) Watch(onPos func(sensor.Position), onErr func(error)) (sensor.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.watches++
	f.onPos = onPos
	f.onErr = onErr
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubs++
		f.onPos = nil
		f.onErr = nil
	}, nil
}

func (f *fakeSource) emit(p sensor.Position) {
	f.mu.Lock()
	fn := f.onPos
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	fn := f.onErr
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fix(lat, lon float64, at time.Duration) sensor.Position {
	return sensor.Position{Latitude: lat, Longitude: lon, Timestamp: t0.Add(at)}
}

func TestOffer_Filtering(t *testing.T) {
	tests := []struct {
		name   string
		inputs []sensor.Position
		want   []bool
	}{
		{
			name:   "first valid fix is emitted",
			inputs: []sensor.Position{fix(48.1, 11.5, 0)},
			want:   []bool{true},
		},
		{
			name:   "NaN is rejected",
			inputs: []sensor.Position{fix(math.NaN(), 11.5, 0)},
			want:   []bool{false},
		},
		{
			name:   "out of range latitude is rejected",
			inputs: []sensor.Position{fix(91, 11.5, 0)},
			want:   []bool{false},
		},
		{
			name:   "inside throttle window",
			inputs: []sensor.Position{fix(48.1, 11.5, 0), fix(48.2, 11.5, 100*time.Millisecond)},
			want:   []bool{true, false},
		},
		{
			name:   "after throttle window",
			inputs: []sensor.Position{fix(48.1, 11.5, 0), fix(48.2, 11.5, 250*time.Millisecond)},
			want:   []bool{true, true},
		},
		{
			name:   "identical reading is coalesced",
			inputs: []sensor.Position{fix(48.1, 11.5, 0), fix(48.1, 11.5, time.Second)},
			want:   []bool{true, false},
		},
		{
			name: "speed change is a new reading",
			inputs: []sensor.Position{
				fix(48.1, 11.5, 0),
				{Latitude: 48.1, Longitude: 11.5, Speed: sensor.Float(1.2), Timestamp: t0.Add(time.Second)},
			},
			want: []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(DefaultConfig(), nil)
			var got []bool
			for _, p := range tt.inputs {
				got = append(got, s.Offer(p))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOffer_ZeroTimestampUsesClock(t *testing.T) {
	now := t0
	s := New(DefaultConfig(), nil, WithClock(func() time.Time { return now }))

	assert.True(t, s.Offer(sensor.Position{Latitude: 1, Longitude: 1}))
	now = now.Add(100 * time.Millisecond)
	assert.False(t, s.Offer(sensor.Position{Latitude: 2, Longitude: 1}))
	now = now.Add(200 * time.Millisecond)
	assert.True(t, s.Offer(sensor.Position{Latitude: 2, Longitude: 1}))
}

func TestOffer_CountsPerOutcome(t *testing.T) {
	tr := tracker.New()
	s := New(DefaultConfig(), tr)

	s.Offer(fix(48.1, 11.5, 0))
	s.Offer(fix(48.2, 11.5, 10*time.Millisecond))
	s.Offer(fix(48.1, 11.5, time.Second))
	s.Offer(fix(math.NaN(), 0, 2*time.Second))

	st := tr.Snapshot()[tracker.StreamPosition]
	assert.Equal(t, int64(1), st.Accepted)
	assert.Equal(t, int64(1), st.Throttled)
	assert.Equal(t, int64(1), st.Duplicate)
	assert.Equal(t, int64(1), st.Invalid)
}

func TestSubscribers_ReceiveInOrder(t *testing.T) {
	s := New(Config{MinInterval: 0}, nil)

	var got []float64
	cancel := s.Subscribe(func(p sensor.Position) { got = append(got, p.Latitude) })

	for i := 0; i < 5; i++ {
		s.Offer(fix(float64(i), 0, time.Duration(i)*time.Second))
	}
	cancel()
	cancel()
	s.Offer(fix(10, 0, 10*time.Second))

	assert.Equal(t, []float64{0, 1, 2, 3, 4}, got)
}

func TestHandleError_TimeoutKeepsLastFix(t *testing.T) {
	s := New(DefaultConfig(), nil)
	require.True(t, s.Offer(fix(48.1, 11.5, 0)))

	s.HandleError(fmt.Errorf("gps: %w", sensor.ErrSignalTimeout))

	st := s.Status()
	assert.Equal(t, StateAcquiring, st.State)
	assert.Equal(t, sensor.FailureNone, st.Failure)
	require.NotNil(t, st.Last)
	assert.Equal(t, 48.1, st.Last.Latitude)

	// A later fix recovers
	assert.True(t, s.Offer(fix(48.2, 11.5, time.Second)))
	assert.Equal(t, StateTracking, s.Status().State)
	assert.Empty(t, s.Status().LastError)
}

func TestHandleError_Terminal(t *testing.T) {
	tests := []struct {
		err  error
		want sensor.Failure
	}{
		{sensor.ErrPermissionDenied, sensor.FailurePermissionDenied},
		{sensor.ErrPositionUnavailable, sensor.FailurePositionUnavailable},
		{sensor.ErrSensorUnavailable, sensor.FailureUnsupported},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			s := New(DefaultConfig(), nil)
			s.HandleError(tt.err)

			st := s.Status()
			assert.Equal(t, StateFailed, st.State)
			assert.Equal(t, tt.want, st.Failure)
			assert.False(t, s.Offer(fix(1, 1, 0)), "failed stream must not emit")
		})
	}
}

func TestStartStop_ExactlyOnce(t *testing.T) {
	src := &fakeSource{}
	s := New(DefaultConfig(), nil)

	require.NoError(t, s.Start(src))
	require.NoError(t, s.Start(src))
	assert.Equal(t, 1, src.watches)
	assert.Equal(t, StateAcquiring, s.Status().State)

	src.emit(fix(48.1, 11.5, 0))
	assert.Equal(t, StateTracking, s.Status().State)

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, src.unsubs)
	assert.Equal(t, StateIdle, s.Status().State)
}

func TestStart_AfterStopClearsTerminalFailure(t *testing.T) {
	src := &fakeSource{}
	s := New(DefaultConfig(), nil)
	require.NoError(t, s.Start(src))

	src.fail(sensor.ErrPermissionDenied)
	assert.Equal(t, StateFailed, s.Status().State)

	s.Stop()
	assert.Equal(t, StateFailed, s.Status().State)

	require.NoError(t, s.Start(src))
	st := s.Status()
	assert.Equal(t, StateAcquiring, st.State)
	assert.Equal(t, sensor.FailureNone, st.Failure)
	assert.Equal(t, 2, src.watches)
}

func TestStart_WatchError(t *testing.T) {
	src := &fakeSource{watchErr: sensor.ErrSensorUnavailable}
	s := New(DefaultConfig(), nil)

	err := s.Start(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sensor.ErrSensorUnavailable))
	assert.Equal(t, sensor.FailureUnsupported, s.Status().Failure)
}

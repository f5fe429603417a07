package sensor

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeW1Slave(t *testing.T, contents string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "w1_slave"), []byte(contents), 0644))
	return dir
}

func TestReadSensorTemp(t *testing.T) {
	path := writeW1Slave(t, "a1 01 4b 46 7f ff 0c 10 d8 : crc=d8 YES\na1 01 4b 46 7f ff 0c 10 d8 t=22062\n")

	temp, err := ReadSensorTemp(path)
	require.NoError(t, err)
	assert.InDelta(t, 22.062, temp, 0.0001)
}

func TestReadSensorTempNegative(t *testing.T) {
	path := writeW1Slave(t, "a1 01 4b 46 7f ff 0c 10 d8 : crc=d8 YES\na1 01 4b 46 7f ff 0c 10 d8 t=-1500\n")

	temp, err := ReadSensorTemp(path)
	require.NoError(t, err)
	assert.InDelta(t, -1.5, temp, 0.0001)
}

func TestReadSensorTempMalformed(t *testing.T) {
	path := writeW1Slave(t, "garbage\n")

	_, err := ReadSensorTemp(path)
	assert.Error(t, err)
}

func TestReadSensorTempMissingFile(t *testing.T) {
	_, err := ReadSensorTemp(t.TempDir())
	assert.Error(t, err)
}

func TestReadSensorTempWithRetries(t *testing.T) {
	original := ReadSensorTemp
	defer func() { ReadSensorTemp = original }()

	calls := 0
	ReadSensorTemp = func(sensorPath string) (float64, error) {
		calls++
		if calls < 3 {
			return 0, assert.AnError
		}
		return 21.5, nil
	}

	temp, err := ReadSensorTempWithRetries("unused", 3)
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp)
	assert.Equal(t, 3, calls)
}

func TestParseReading(t *testing.T) {
	temp, ts := ParseReading([]byte(`{"temperature": 21.4, "timestamp": "2025-06-01T12:00:00Z"}`))
	assert.Equal(t, 21.4, temp)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ts)
}

func TestParseReadingWithoutTimestamp(t *testing.T) {
	before := time.Now()
	temp, ts := ParseReading([]byte(`{"temperature": 19.0}`))
	assert.Equal(t, 19.0, temp)
	assert.False(t, ts.Before(before))
}

func TestParseReadingMalformed(t *testing.T) {
	for _, payload := range []string{"not json", "{}", `{"temperature": null}`} {
		temp, _ := ParseReading([]byte(payload))
		assert.True(t, math.IsNaN(temp), "payload %q should yield NaN", payload)
	}
}

func TestW1PollerDeliversSamples(t *testing.T) {
	original := ReadSensorTemp
	defer func() { ReadSensorTemp = original }()
	ReadSensorTemp = func(sensorPath string) (float64, error) {
		return 20.5, nil
	}

	samples := make(chan float64, 1)
	poller := NewW1Poller("28-test", 10*time.Millisecond, func(temp float64, _ time.Time) {
		select {
		case samples <- temp:
		default:
		}
	})

	stop := make(chan struct{})
	go poller.Run(stop)
	defer close(stop)

	select {
	case temp := <-samples:
		assert.Equal(t, 20.5, temp)
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
	}
}

package helper

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func bufferedEntry() (*logrus.Entry, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	return logrus.NewEntry(l), &buf
}

func TestGo_RunsFunction(t *testing.T) {
	log, _ := bufferedEntry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0

	for i := 0; i < 5; i++ {
		Go(&wg, log, "worker", func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, 5, count)
}

func TestGo_RecoversPanic(t *testing.T) {
	log, buf := bufferedEntry()
	var wg sync.WaitGroup

	Go(&wg, log, "listener:_http._tcp", func() {
		panic("boom")
	})
	wg.Wait()

	assert.Contains(t, buf.String(), "PANIC recovered in listener:_http._tcp: boom")
}

func TestRecoverPanic_NoPanic(t *testing.T) {
	log, buf := bufferedEntry()

	func() {
		defer RecoverPanic(log, "quiet")
	}()

	assert.Empty(t, buf.String())
}

//go:build windows

package narration

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// hresultFalse is S_FALSE, returned when COM is already initialized on the thread.
const hresultFalse = 1

var errSAPINotOpen = errors.New("sapi driver is not open")

// SAPIDriver speaks through the Windows Speech API. COM objects live on one
// goroutine locked to its OS thread; every call is marshalled onto it.
type SAPIDriver struct {
	mu     sync.Mutex
	calls  chan func()
	exited chan struct{}

	// Owned by the COM goroutine.
	voice  *ole.IDispatch
	tokens []*ole.IDispatch
}

// NewSAPIDriver returns a closed driver.
func NewSAPIDriver() *SAPIDriver {
	return &SAPIDriver{}
}

// Open creates the SpVoice object.
func (d *SAPIDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.calls != nil {
		return nil
	}

	calls := make(chan func())
	exited := make(chan struct{})
	ready := make(chan error, 1)

	go d.loop(calls, exited, ready)

	err := <-ready
	if err != nil {
		return err
	}

	d.calls = calls
	d.exited = exited

	return nil
}

func (d *SAPIDriver) loop(calls <-chan func(), exited chan<- struct{}, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(exited)

	initErr := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if initErr != nil {
		var oleErr *ole.OleError
		if !errors.As(initErr, &oleErr) || oleErr.Code() != hresultFalse {
			ready <- fmt.Errorf("failed to initialize COM: %w", initErr)

			return
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("SAPI.SpVoice")
	if err != nil {
		ready <- fmt.Errorf("failed to create SAPI.SpVoice: %w", err)

		return
	}

	voice, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()

	if err != nil {
		ready <- fmt.Errorf("failed to query SpVoice dispatch: %w", err)

		return
	}

	d.voice = voice
	ready <- nil

	for call := range calls {
		call()
	}

	d.releaseTokens()
	d.voice.Release()
	d.voice = nil
}

func (d *SAPIDriver) do(fn func() error) error {
	d.mu.Lock()
	calls := d.calls
	d.mu.Unlock()

	if calls == nil {
		return errSAPINotOpen
	}

	result := make(chan error, 1)
	calls <- func() { result <- fn() }

	return <-result
}

// Voices returns the description of every voice token.
func (d *SAPIDriver) Voices() ([]string, error) {
	var descriptions []string

	err := d.do(func() error {
		d.releaseTokens()

		tokensVar, err := oleutil.CallMethod(d.voice, "GetVoices")
		if err != nil {
			return fmt.Errorf("GetVoices failed: %w", err)
		}

		tokens := tokensVar.ToIDispatch()
		defer tokens.Release()

		countVar, err := oleutil.GetProperty(tokens, "Count")
		if err != nil {
			return fmt.Errorf("failed to read voice count: %w", err)
		}

		count := int(countVar.Val)

		for i := range count {
			itemVar, itemErr := oleutil.CallMethod(tokens, "Item", i)
			if itemErr != nil {
				return fmt.Errorf("failed to read voice %d: %w", i, itemErr)
			}

			token := itemVar.ToIDispatch()

			descVar, descErr := oleutil.CallMethod(token, "GetDescription")
			if descErr != nil {
				token.Release()

				return fmt.Errorf("failed to describe voice %d: %w", i, descErr)
			}

			descriptions = append(descriptions, descVar.ToString())
			d.tokens = append(d.tokens, token)
		}

		return nil
	})

	return descriptions, err
}

// Speak selects the token at index, applies rate and speaks synchronously.
// The SAPI call cannot be interrupted, so ctx is not consulted.
func (d *SAPIDriver) Speak(_ context.Context, index, rate int, text string) error {
	return d.do(func() error {
		if index < 0 || index >= len(d.tokens) {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}

		_, err := oleutil.PutPropertyRef(d.voice, "Voice", d.tokens[index])
		if err != nil {
			return fmt.Errorf("failed to set voice: %w", err)
		}

		_, err = oleutil.PutProperty(d.voice, "Rate", ClampRate(rate))
		if err != nil {
			return fmt.Errorf("failed to set rate: %w", err)
		}

		_, err = oleutil.CallMethod(d.voice, "Speak", text)
		if err != nil {
			return fmt.Errorf("speak failed: %w", err)
		}

		return nil
	})
}

// Close releases the COM objects and waits for the COM goroutine to exit.
func (d *SAPIDriver) Close() error {
	d.mu.Lock()
	calls, exited := d.calls, d.exited
	d.calls, d.exited = nil, nil
	d.mu.Unlock()

	if calls == nil {
		return nil
	}

	close(calls)
	<-exited

	return nil
}

func (d *SAPIDriver) releaseTokens() {
	for _, token := range d.tokens {
		token.Release()
	}

	d.tokens = nil
}

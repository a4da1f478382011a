package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

var (
	gpioMutex  sync.Mutex
	gpioOpened bool
)

func openGPIO() error {
	gpioMutex.Lock()
	defer gpioMutex.Unlock()
	if gpioOpened {
		return nil
	}
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	gpioOpened = true
	return nil
}

func closeGPIO() error {
	gpioMutex.Lock()
	defer gpioMutex.Unlock()
	if !gpioOpened {
		return nil
	}
	gpioOpened = false
	return rpio.Close()
}

// GPIOMotor drives a vibration motor through a transistor on one BCM pin.
type GPIOMotor struct {
	// Guards pin
	mu  sync.Mutex
	pin rpio.Pin
}

// NewGPIOMotor opens the GPIO memory and configures pin as a low output.
func NewGPIOMotor(pin int) (*GPIOMotor, error) {
	if err := openGPIO(); err != nil {
		return nil, err
	}
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	slog.Info("GPIOMotor: initialised", "pin", pin)
	return &GPIOMotor{pin: p}, nil
}

func (m *GPIOMotor) On() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pin.High()
	return nil
}

func (m *GPIOMotor) Off() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pin.Low()
	return nil
}

// SetPin switches the motor off and moves it to another BCM pin.
func (m *GPIOMotor) SetPin(pin int) error {
	if pin < 0 || pin > 27 {
		return fmt.Errorf("pin %d is not a BCM GPIO", pin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rpio.Pin(pin) == m.pin {
		return nil
	}
	m.pin.Low()
	m.pin = rpio.Pin(pin)
	m.pin.Output()
	m.pin.Low()
	slog.Info("GPIOMotor: moved", "pin", pin)
	return nil
}

// Close switches the motor off and releases the GPIO memory.
func (m *GPIOMotor) Close() error {
	m.mu.Lock()
	m.pin.Low()
	m.mu.Unlock()
	return closeGPIO()
}

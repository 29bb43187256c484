package capture

import (
	"image"

	"github.com/stretchr/testify/mock"
)

// MockFeed is a mock implementation of FrameSource.
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) NativeSize() (int, int) {
	args := m.Called()
	return args.Int(0), args.Int(1)
}

func (m *MockFeed) CurrentFrame() (image.Image, error) {
	args := m.Called()
	img, _ := args.Get(0).(image.Image)
	return img, args.Error(1)
}

// MockLayout is a mock implementation of Layout.
type MockLayout struct {
	mock.Mock
}

func (m *MockLayout) DisplayedSize() (float64, float64) {
	args := m.Called()
	return args.Get(0).(float64), args.Get(1).(float64)
}

func (m *MockLayout) Origin() (float64, float64) {
	args := m.Called()
	return args.Get(0).(float64), args.Get(1).(float64)
}

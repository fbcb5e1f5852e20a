package network

// ErrConnectionClosedByServer is returned when the server closes the channel normally
type ErrConnectionClosedByServer struct{}

func (e *ErrConnectionClosedByServer) Error() string {
	return "connection closed by server"
}

// ErrConnectionClosedByClient is returned after Stop has closed the channel
type ErrConnectionClosedByClient struct{}

func (e *ErrConnectionClosedByClient) Error() string {
	return "connection closed by client"
}

// ErrNotConnected is returned when publishing while the channel is down
type ErrNotConnected struct{}

func (e *ErrNotConnected) Error() string {
	return "channel is not connected"
}

func IsNotConnected(err error) bool {
	_, ok := err.(*ErrNotConnected)
	return ok
}

package serviceiface

// Service is a unit of the application lifecycle managed by the app manager.
// Start must return quickly; long-running work belongs on a goroutine owned
// by the service and torn down in Stop.
type Service interface {
	Name() string
	Start() error
	Stop() error
}

package fieldbus

import (
	"sync"

	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
)

// OPCUAServer is a stub OPC-UA address space: it maintains the variable set a
// real server would expose, without the binary protocol. Dashboards and tests
// read variables through the accessor.
type OPCUAServer struct {
	logger *logrus.Logger
	port   int

	variables map[string]interface{}
	running   bool
	mutex     sync.RWMutex
}

func NewOPCUAServer(port int, logger *logrus.Logger) *OPCUAServer {
	return &OPCUAServer{
		logger:    logger,
		port:      port,
		variables: make(map[string]interface{}),
	}
}

func (o *OPCUAServer) Start() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.running = true
	o.logger.Infof("OPC-UA server started on port %d", o.port)
	return nil
}

func (o *OPCUAServer) Close() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.running = false
	o.logger.Info("OPC-UA server stopped")
}

func (o *OPCUAServer) Name() string {
	return "opcua"
}

// Offer refreshes the variable space from a snapshot.
func (o *OPCUAServer) Offer(snapshot models.Snapshot) bool {
	values := snapshot.Map()

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.running {
		return false
	}
	for k, v := range values {
		o.variables[k] = v
	}
	return true
}

// Variable returns the current value of one exposed variable.
func (o *OPCUAServer) Variable(name string) (interface{}, bool) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	v, ok := o.variables[name]
	return v, ok
}

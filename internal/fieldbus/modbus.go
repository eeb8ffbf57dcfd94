package fieldbus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"plc-server/internal/models"

	"github.com/sirupsen/logrus"
	mbserver "github.com/tbrandon/mbserver"
)

// Holding register addresses of the process image. Values are scaled by 100
// into one 16-bit register, BigEndian on the wire; density and oil-in-water
// are stored unscaled because their engineering ranges exceed the scaled
// uint16 span.
const (
	RegFlowRate          = 0
	RegPressureInlet     = 1
	RegPressureOutlet    = 2
	RegTemperature       = 3
	RegDensity           = 4
	RegGasVolumeFraction = 5
	RegWaterCut          = 6
	RegOilInWater        = 7
	RegPumpSpeed         = 8
	RegInletValve        = 9
	RegOutletValve       = 10
	RegStatusBits        = 11

	registerCount = 12
	valueScale    = 100.0
)

// Status bit assignments within RegStatusBits.
const (
	statusRunning = 1 << iota
	statusEmergencyStop
	statusMaintenance
	statusAlarm
	statusSampleValve
)

// ModbusServer exposes the latest process snapshot as Modbus holding
// registers over TCP. Function code 3 reads are answered from a register
// image refreshed by the scan loop; the wire protocol is handled by
// mbserver.
type ModbusServer struct {
	server *mbserver.Server
	logger *logrus.Logger
	port   int

	registers [registerCount]uint16
	mutex     sync.RWMutex
}

func NewModbusServer(port int, logger *logrus.Logger) *ModbusServer {
	m := &ModbusServer{
		server: mbserver.NewServer(),
		logger: logger,
		port:   port,
	}

	m.server.RegisterFunctionHandler(3, m.handleReadHoldingRegisters)
	return m
}

func (m *ModbusServer) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%d", m.port)
	if err := m.server.ListenTCP(addr); err != nil {
		return fmt.Errorf("modbus listen failed: %w", err)
	}

	m.logger.Infof("Modbus TCP server started on %s", addr)
	return nil
}

func (m *ModbusServer) Close() {
	m.logger.Info("Modbus TCP server stopped")
	m.server.Close()
}

func (m *ModbusServer) Name() string {
	return "modbus"
}

// Offer refreshes the register image from a snapshot. The write is a short
// in-memory copy, so the scan loop can call it directly.
func (m *ModbusServer) Offer(snapshot models.Snapshot) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.registers[RegFlowRate] = scale(snapshot.FlowRate)
	m.registers[RegPressureInlet] = scale(snapshot.PressureInlet)
	m.registers[RegPressureOutlet] = scale(snapshot.PressureOutlet)
	m.registers[RegTemperature] = scale(snapshot.Temperature)
	m.registers[RegDensity] = scale(snapshot.DensityMeasurement / valueScale) // kg/m³ exceeds uint16 when scaled
	m.registers[RegGasVolumeFraction] = scale(snapshot.GasVolumeFraction)
	m.registers[RegWaterCut] = scale(snapshot.WaterCut)
	m.registers[RegOilInWater] = scale(snapshot.OilInWaterPPM / valueScale) // ppm exceeds uint16 when scaled
	m.registers[RegPumpSpeed] = scale(snapshot.PumpSpeed)
	m.registers[RegInletValve] = scale(snapshot.InletValvePosition)
	m.registers[RegOutletValve] = scale(snapshot.OutletValvePosition)

	var status uint16
	if snapshot.SystemRunning {
		status |= statusRunning
	}
	if snapshot.EmergencyStop {
		status |= statusEmergencyStop
	}
	if snapshot.MaintenanceMode {
		status |= statusMaintenance
	}
	if snapshot.AlarmActive {
		status |= statusAlarm
	}
	if snapshot.SampleValveOpen {
		status |= statusSampleValve
	}
	m.registers[RegStatusBits] = status

	return true
}

// Register returns the current raw value of one holding register.
func (m *ModbusServer) Register(addr int) uint16 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if addr < 0 || addr >= registerCount {
		return 0
	}
	return m.registers[addr]
}

func (m *ModbusServer) handleReadHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	frameData := frame.GetData()
	start := int(binary.BigEndian.Uint16(frameData[0:2]))
	numRegs := int(binary.BigEndian.Uint16(frameData[2:4]))

	if start < 0 || numRegs <= 0 || start+numRegs > registerCount {
		return nil, &mbserver.IllegalDataAddress
	}

	dataSize := numRegs * 2
	data := make([]byte, 1+dataSize)
	data[0] = byte(dataSize)

	m.mutex.RLock()
	for i := 0; i < numRegs; i++ {
		binary.BigEndian.PutUint16(data[1+i*2:], m.registers[start+i])
	}
	m.mutex.RUnlock()

	return data, &mbserver.Success
}

// scale converts an engineering value into a x100 fixed-point register,
// saturating at the uint16 range.
func scale(v float64) uint16 {
	scaled := v * valueScale
	if scaled < 0 {
		return 0
	}
	if scaled > 65535 {
		return 65535
	}
	return uint16(scaled)
}

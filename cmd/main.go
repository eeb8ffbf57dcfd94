package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"plc-server/internal/config"
	"plc-server/internal/control"
	"plc-server/internal/datalogger"
	"plc-server/internal/fieldbus"
	"plc-server/internal/hmi"
	"plc-server/internal/models"
	"plc-server/internal/mqtt"
	"plc-server/internal/plc"
	"plc-server/internal/safety"
	"plc-server/internal/simulation"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Infof("Starting PLC server for unit %s", cfg.Process.UnitID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panel := models.NewOperatorPanel()
	sensorBus := models.NewSensorBus()
	simulator := simulation.NewSensorSimulator(sensorBus, time.Now().UnixNano(), logger)

	flowPID := newPID("flow", cfg.Controllers.Flow, cfg.Process.ScanTime, logger)
	pressurePID := newPID("pressure", cfg.Controllers.Pressure, cfg.Process.ScanTime, logger)
	evaluator := safety.NewEvaluator(safety.LimitsFromConfig(cfg.Safety), logger)

	controller := plc.NewController(cfg, flowPID, pressurePID, evaluator, sensorBus, panel, plc.WallClock{}, logger)

	var wg sync.WaitGroup

	if cfg.Database.Enabled {
		recorder, err := datalogger.NewRecorder(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatalf("Failed to open process history: %v", err)
		}
		controller.AddSink(recorder)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx)
		}()
		defer recorder.Close()
	}

	if cfg.Modbus.Enabled {
		modbusServer := fieldbus.NewModbusServer(cfg.Modbus.Port, logger)
		if err := modbusServer.Start(); err != nil {
			logger.Errorf("Modbus server unavailable: %v", err)
		} else {
			controller.AddSink(modbusServer)
			defer modbusServer.Close()
		}
	}

	if cfg.OPCUA.Enabled {
		opcuaServer := fieldbus.NewOPCUAServer(cfg.OPCUA.Port, logger)
		if err := opcuaServer.Start(); err != nil {
			logger.Errorf("OPC-UA server unavailable: %v", err)
		} else {
			controller.AddSink(opcuaServer)
			defer opcuaServer.Close()
		}
	}

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg, panel, logger)
		if err := mqttClient.Connect(); err != nil {
			logger.Fatalf("Failed to connect to MQTT: %v", err)
		}
		defer mqttClient.Disconnect()
		controller.AddSink(mqttClient)
		wg.Add(1)
		go func() {
			defer wg.Done()
			mqttClient.Run(ctx)
		}()
	}

	hmiServer := hmi.NewServer(cfg, controller, panel, logger)
	controller.AddSink(hmiServer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hmiServer.Start(ctx); err != nil {
			logger.Errorf("HMI server error: %v", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		simulator.Run(ctx, cfg.Process.ScanPeriod())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.Run(ctx)
	}()

	logger.Info("All services started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down...")
	cancel()
	hmiServer.Stop()

	wg.Wait()
	logger.Info("Shutdown complete")
}

func newPID(name string, gains config.PIDGains, scanTime float64, logger *logrus.Logger) *control.PIDController {
	params := control.DefaultParameters()
	params.Kp = gains.Kp
	params.Ki = gains.Ki
	params.Kd = gains.Kd
	params.SampleTime = scanTime
	return control.NewPIDController(name, params, logger)
}

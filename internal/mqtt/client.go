package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plc-server/internal/config"
	"plc-server/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Client bridges the control core to an MQTT broker: each completed scan
// cycle's snapshot is published as JSON, and operator commands/setpoint
// updates arriving on the command topics are staged on the operator panel.
type Client struct {
	client mqtt.Client
	cfg    *config.Config
	logger *logrus.Logger
	panel  *models.OperatorPanel

	stateTopic     string
	commandTopic   string
	setpointsTopic string

	out chan models.Snapshot
}

type CommandMessage struct {
	Action string `json:"action"`
}

func NewClient(cfg *config.Config, panel *models.OperatorPanel, logger *logrus.Logger) *Client {
	unit := cfg.Process.UnitID

	c := &Client{
		cfg:            cfg,
		logger:         logger,
		panel:          panel,
		stateTopic:     fmt.Sprintf("plant/%s/state", unit),
		commandTopic:   fmt.Sprintf("plant/%s/cmd", unit),
		setpointsTopic: fmt.Sprintf("plant/%s/setpoints", unit),
		out:            make(chan models.Snapshot, 16),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID("plc-server-" + unit)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	return c
}

func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker...")

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("Connected to MQTT broker")
	return nil
}

func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker...")
	c.client.Disconnect(250)
}

func (c *Client) Name() string {
	return "mqtt"
}

// Offer queues a snapshot for publishing without blocking the scan loop.
func (c *Client) Offer(snapshot models.Snapshot) bool {
	select {
	case c.out <- snapshot:
		return true
	default:
		return false
	}
}

// Run drains the snapshot queue and publishes until cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-c.out:
			c.publish(snapshot)
		}
	}
}

func (c *Client) publish(snapshot models.Snapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Errorf("Failed to marshal snapshot: %v", err)
		return
	}

	// QoS 0, fire and forget: a lost sample is cheaper than backpressure
	// into the control path.
	c.client.Publish(c.stateTopic, 0, false, payload)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected, subscribing to topics...")

	if token := client.Subscribe(c.commandTopic, 1, c.handleCommandMessage); token.Wait() && token.Error() != nil {
		c.logger.Errorf("Failed to subscribe to command topic: %v", token.Error())
	} else {
		c.logger.Infof("Subscribed to command topic: %s", c.commandTopic)
	}

	if token := client.Subscribe(c.setpointsTopic, 1, c.handleSetpointsMessage); token.Wait() && token.Error() != nil {
		c.logger.Errorf("Failed to subscribe to setpoints topic: %v", token.Error())
	} else {
		c.logger.Infof("Subscribed to setpoints topic: %s", c.setpointsTopic)
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Errorf("MQTT connection lost: %v", err)
}

func (c *Client) handleCommandMessage(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debugf("Received command message: %s", string(msg.Payload()))

	action := strings.TrimSpace(string(msg.Payload()))
	if json.Valid(msg.Payload()) {
		var cmd CommandMessage
		if err := json.Unmarshal(msg.Payload(), &cmd); err == nil && cmd.Action != "" {
			action = cmd.Action
		}
	}

	if err := ApplyCommand(c.panel, action); err != nil {
		c.logger.Errorf("Rejected MQTT command: %v", err)
		return
	}
	c.logger.Infof("Operator command accepted: %s", action)
}

func (c *Client) handleSetpointsMessage(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debugf("Received setpoints message: %s", string(msg.Payload()))

	var update models.SetpointUpdate
	if err := json.Unmarshal(msg.Payload(), &update); err != nil {
		c.logger.Errorf("Failed to parse setpoints payload: %v", err)
		return
	}

	if err := c.panel.UpdateSetpoints(update); err != nil {
		c.logger.Errorf("Rejected setpoint update: %v", err)
		return
	}
	c.logger.Info("Setpoints updated")
}

// ApplyCommand maps an operator action name onto the panel. Shared by the
// MQTT and HMI command surfaces.
func ApplyCommand(panel *models.OperatorPanel, action string) error {
	switch strings.ToLower(action) {
	case "start":
		panel.RequestStart()
	case "stop":
		panel.RequestStop()
	case "emergency_stop", "estop":
		panel.TriggerEmergencyStop()
	case "reset_emergency_stop", "reset_estop":
		panel.ResetEmergencyStop()
	case "ack_safety":
		panel.AcknowledgeSafety()
	case "maintenance_on":
		panel.SetMaintenanceMode(true)
	case "maintenance_off":
		panel.SetMaintenanceMode(false)
	default:
		return fmt.Errorf("unknown command: %q", action)
	}
	return nil
}

package mcamdriver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gocv.io/x/gocv"
)

const (
	MQTT_TOPIC_IMAGE_LIVE = "moticam/images/live"
	MQTT_TOPIC_STATUS     = "moticam/status"
	MQTT_TOPIC_STOP       = "moticam/capture/stop"

	// Minimal interval between published frames; a live session at full
	// rate would otherwise flood the broker.
	MQTT_PUBLISH_MIN_INTERVAL = 333 * time.Millisecond
)

var MQTT_CLIENT_ID = "moticam-driver"

func init() {
	if clientID := os.Getenv("MQTT_CLIENT_ID"); clientID != "" {
		MQTT_CLIENT_ID = clientID
	}
}

// NewMQTTClient connects to the broker named in the MQTT_BROKER env
// variable (e.g. tcp://192.168.1.57:1883). Remote monitoring is optional;
// callers skip the sink entirely when the variable is unset.
func NewMQTTClient() (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return nil, fmt.Errorf("MQTT_BROKER env variable is not set")
	}

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(MQTT_CLIENT_ID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// SetupMQTTSubscriptionCallbacks wires the remote stop topic to the capture
// loop's cancel function. Any payload on the stop topic ends a live
// session at the next iteration boundary.
func SetupMQTTSubscriptionCallbacks(cancel context.CancelFunc, client mqtt.Client) error {
	token := client.Subscribe(MQTT_TOPIC_STOP, 2, func(client mqtt.Client, msg mqtt.Message) {
		INFOLogger.Printf("Stop requested over MQTT (topic %s)", msg.Topic())
		cancel()
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// publishImage publishes a BGR mat as base64 jpg.
func publishImage(topic string, mat gocv.Mat, mqttClient mqtt.Client) error {
	imgBuf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return err
	}
	imgBytes := imgBuf.GetBytes()
	var b64bytes []byte = make([]byte, base64.StdEncoding.EncodedLen(len(imgBytes)))
	base64.StdEncoding.Encode(b64bytes, imgBytes)
	mqttClient.Publish(topic, 2, false, b64bytes)
	return nil
}

func publishJsonMsg(topic string, obj interface{}, mqttClient mqtt.Client) error {
	msg, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	mqttClient.Publish(topic, 2, false, msg)
	return err
}

// MQTTSink mirrors frames and session status to the broker. It accepts any
// capture mode: raw frames update the status counters only, color frames
// are published as base64 JPEG, throttled to MQTT_PUBLISH_MIN_INTERVAL.
type MQTTSink struct {
	client mqtt.Client
	cfg    SessionConfig

	captured        int
	lastImagePublAt time.Time
}

func NewMQTTSink(client mqtt.Client, cfg SessionConfig) *MQTTSink {
	return &MQTTSink{client: client, cfg: cfg}
}

func (s *MQTTSink) publishStatus(state string) {
	status := CaptureStatusMessage{
		State:      state,
		Resolution: s.cfg.Resolution.String(),
		ExposureMS: s.cfg.ExposureMS,
		Gain:       s.cfg.Gain,
		Captured:   s.captured,
	}
	if err := publishJsonMsg(MQTT_TOPIC_STATUS, status, s.client); err != nil {
		WARNINGLogger.Printf("Can not publish status: %v", err)
	}
}

func (s *MQTTSink) ConsumeRaw(raw []byte) error {
	s.captured++
	s.publishStatus("capturing")
	return nil
}

func (s *MQTTSink) publishFrame(width, height int, rgba []byte) error {
	s.captured++
	s.publishStatus("capturing")
	if time.Since(s.lastImagePublAt) < MQTT_PUBLISH_MIN_INTERVAL {
		return nil
	}
	s.lastImagePublAt = time.Now()

	bgr, err := rgbaToBGRMat(width, height, rgba)
	if err != nil {
		return err
	}
	defer bgr.Close()
	if err := publishImage(MQTT_TOPIC_IMAGE_LIVE, bgr, s.client); err != nil {
		// The broker being away must not end a capture session.
		WARNINGLogger.Printf("Can not publish image: %v", err)
	}
	return nil
}

func (s *MQTTSink) ConsumeColor(width, height int, rgba []byte) error {
	return s.publishFrame(width, height, rgba)
}

func (s *MQTTSink) PresentLive(width, height int, rgba []byte) error {
	return s.publishFrame(width, height, rgba)
}

func (s *MQTTSink) Close() error {
	s.publishStatus("done")
	s.client.Disconnect(250)
	return nil
}

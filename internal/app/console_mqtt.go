package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
)

// consolePrinter formats the calibration topics as console lines.
type consolePrinter struct {
	out io.Writer
}

func (c consolePrinter) mag(_ mqtt.Client, msg mqtt.Message) {
	var s imu.MagRaw
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		log.Printf("console: mag unmarshal error: %v", err)
		return
	}
	fmt.Fprintf(c.out,
		"[MAG ]  mx=%6d my=%6d mz=%6d  |B|=%6.2fµT  src=%s\n",
		s.Mx, s.My, s.Mz, s.Norm, s.Source,
	)
}

func (c consolePrinter) progress(_ mqtt.Client, msg mqtt.Message) {
	var ev ProgressEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		log.Printf("console: progress unmarshal error: %v", err)
		return
	}
	switch ev.Type {
	case "error":
		fmt.Fprintf(c.out, "[CAL!]  %s: %s\n", ev.Source, ev.Message)
	case "complete":
		fmt.Fprintf(c.out, "[CAL ]  %s: done, %d samples -> %s\n", ev.Source, ev.Samples, ev.Message)
	default:
		fmt.Fprintf(c.out,
			"[CAL ]  %s: %5d/%d (%3.0f%%) coverage=%3.0f%% |B|=%6.2fµT\n",
			ev.Source, ev.Samples, ev.Target, ev.Percent, ev.Coverage*100, ev.MeanNorm,
		)
	}
}

func (c consolePrinter) result(_ mqtt.Client, msg mqtt.Message) {
	var r Result
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		log.Printf("console: result unmarshal error: %v", err)
		return
	}
	fmt.Fprintf(c.out,
		"[RES ]  %s @ %s  offset=(%.2f, %.2f, %.2f)  field=%.2fµT  rms=%.3f  conf=%.2f\n",
		r.Source, r.CalibrationAt.Format("2006-01-02 15:04:05"),
		r.Offset[0], r.Offset[1], r.Offset[2], r.FieldStrength, r.Quality.RMSError, r.Quality.Confidence,
	)
}

// RunConsoleMQTT prints raw samples, calibration progress and results
// until interrupted.
func RunConsoleMQTT(configPath string, showRaw bool) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("console: config init failed: %w", err)
	}
	cfg := config.Get()

	client, err := ConnectMQTT(cfg, cfg.MQTTClientIDWeb+"-console")
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer client.Disconnect(250)

	p := consolePrinter{out: os.Stdout}
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{cfg.TopicMagProgress, p.progress},
		{cfg.TopicMagCalibration, p.result},
	}
	if showRaw {
		subs = append(subs, struct {
			topic   string
			handler mqtt.MessageHandler
		}{cfg.TopicMag, p.mag})
	}
	for _, s := range subs {
		token := client.Subscribe(s.topic, 0, s.handler)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("console: subscribe %s: %w", s.topic, token.Error())
		}
		log.Printf("console: subscribed to %s", s.topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}

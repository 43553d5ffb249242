package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-moticam-camera-driver/mcamdriver"
)

func usage(msg string) {
	if msg != "" {
		fmt.Fprintln(os.Stderr, "error:", msg)
	}
	fmt.Fprintf(os.Stderr, "usage: %s [options] [FILE]\n\nMoticam 3+ viewer.\n\n", os.Args[0])
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	width := flag.Int("width", 1024, "image width (512, 1024 or 2048)")
	exposure := flag.Float64("exposure", 100, "exposure value in ms (1 to 5000)")
	gain := flag.Float64("gain", 1, "gain value (0.33 to 42.66)")
	count := flag.Int("count", 30, "number of images to take (0 for live view)")
	raw := flag.Bool("raw", false, "append raw mosaic frames to FILE instead of writing PNG files")
	mock := flag.Bool("mock", false, "use a synthetic frame source instead of camera hardware")
	flag.Parse()

	out := "out"
	if flag.NArg() > 0 {
		out = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		usage("too many arguments")
	}

	res, err := mcamdriver.ResolutionForWidth(*width)
	if err != nil {
		usage(err.Error())
	}

	mode := mcamdriver.ModeColor
	if *count == 0 {
		mode = mcamdriver.ModeLive
	}
	if *raw {
		if mode == mcamdriver.ModeLive {
			usage("raw output can not be combined with live view")
		}
		mode = mcamdriver.ModeRaw
	}

	cfg := mcamdriver.SessionConfig{
		Resolution: res,
		ExposureMS: *exposure,
		Gain:       *gain,
		Count:      *count,
		Mode:       mode,
	}
	if err := cfg.Validate(); err != nil {
		usage(err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, out, *mock); err != nil {
		mcamdriver.ERRORLogger.Fatal(err)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg mcamdriver.SessionConfig, out string, mock bool) error {
	var transport mcamdriver.Transport
	if mock {
		transport = mcamdriver.NewUniformFrameTransport(cfg.Resolution, 0x80)
	} else {
		t, err := mcamdriver.OpenUSBTransport()
		if err != nil {
			return err
		}
		transport = t
	}

	cam := mcamdriver.NewCamera(transport)
	// Power the sensor down and release the device on every exit path.
	defer cam.Close()

	sink, err := buildSink(cfg, out, cancel)
	if err != nil {
		return err
	}
	defer sink.Close()

	if err := cam.Init(cfg); err != nil {
		return err
	}

	pipeline := mcamdriver.NewCapturePipeline(cam, cfg, sink)
	return pipeline.Run(ctx)
}

func buildSink(cfg mcamdriver.SessionConfig, out string, cancel context.CancelFunc) (mcamdriver.Sink, error) {
	var sinks mcamdriver.Sinks

	switch cfg.Mode {
	case mcamdriver.ModeRaw:
		raw, err := mcamdriver.NewRawFileSink(out)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, raw)
	case mcamdriver.ModeColor:
		sinks = append(sinks, mcamdriver.NewPNGSink(out))
	case mcamdriver.ModeLive:
		sinks = append(sinks, mcamdriver.NewWindowSink("Moticam 3+", cancel))
	}

	if os.Getenv("MQTT_BROKER") != "" {
		client, err := mcamdriver.NewMQTTClient()
		if err != nil {
			return nil, err
		}
		if err := mcamdriver.SetupMQTTSubscriptionCallbacks(cancel, client); err != nil {
			return nil, err
		}
		sinks = append(sinks, mcamdriver.NewMQTTSink(client, cfg))
	}

	return sinks, nil
}

// Command ch341i2c talks to I2C devices through a CH341 USB adapter.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/amdf/ch341"
	"github.com/amdf/ch341/hdc1008"
)

var log = zap.NewNop()

func main() {
	app := &cli.App{
		Name:  "ch341i2c",
		Usage: "I2C transactions over a CH341 USB adapter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "serial",
				Usage:   "open the adapter with this USB serial number",
				EnvVars: []string{"CH341_SERIAL"},
			},
			&cli.StringFlag{
				Name:    "speed",
				Value:   "100k",
				Usage:   "bus clock: 20k, 100k, 400k or 750k",
				EnvVars: []string{"CH341_SPEED"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   ch341.DefaultTimeout,
				Usage:   "bulk transfer timeout",
				EnvVars: []string{"CH341_TIMEOUT"},
			},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Value: "console", Usage: "console or json"},
			&cli.StringFlag{Name: "log-file", Usage: "also log to this file, rotated"},
		},
		Before: func(c *cli.Context) error {
			log = setupLogger(logConfig{
				Level:  c.String("log-level"),
				Format: c.String("log-format"),
				File:   c.String("log-file"),
			})
			return nil
		},
		After: func(c *cli.Context) error {
			_ = log.Sync()
			return nil
		},
		Commands: []*cli.Command{
			scanCommand,
			readCommand,
			writeCommand,
			writeReadCommand,
			hdcCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withSession opens the adapter for the duration of fn.
func withSession(c *cli.Context, fn func(s *ch341.Session) error) error {
	speed, err := ch341.ParseSpeed(c.String("speed"))
	if err != nil {
		return err
	}

	usb, err := ch341.NewContext()
	if err != nil {
		return err
	}
	defer usb.Close()

	opts := []ch341.Option{
		ch341.WithSpeed(speed),
		ch341.WithTimeout(c.Duration("timeout")),
		ch341.WithLogger(log),
	}
	if serial := c.String("serial"); serial != "" {
		opts = append(opts, ch341.WithSerial(serial))
	}

	s, err := ch341.Open(usb, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	log.Info("adapter ready", zap.Stringer("speed", speed))
	return fn(s)
}

var scanCommand = &cli.Command{
	Name:  "scan",
	Usage: "list addresses that acknowledge",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *ch341.Session) error {
			found, err := s.Scan()
			for _, addr := range found {
				fmt.Printf("0x%02x\n", addr)
			}
			if err != nil {
				return err
			}
			log.Info("scan done", zap.Int("found", len(found)))
			return nil
		})
	},
}

var readCommand = &cli.Command{
	Name:      "read",
	Usage:     "read bytes from a device",
	ArgsUsage: "<addr> <count>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("usage: read <addr> <count>", 2)
		}
		addr, err := parseAddr(c.Args().Get(0))
		if err != nil {
			return err
		}
		n, err := parseLen(c.Args().Get(1))
		if err != nil {
			return err
		}
		return withSession(c, func(s *ch341.Session) error {
			buf := make([]byte, n)
			if err := s.Read(addr, buf); err != nil {
				return err
			}
			fmt.Println(formatBytes(buf))
			return nil
		})
	},
}

var writeCommand = &cli.Command{
	Name:      "write",
	Usage:     "write bytes to a device",
	ArgsUsage: "<addr> <hex bytes...>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("usage: write <addr> <hex bytes...>", 2)
		}
		addr, err := parseAddr(c.Args().First())
		if err != nil {
			return err
		}
		p, err := parseBytes(c.Args().Tail())
		if err != nil {
			return err
		}
		return withSession(c, func(s *ch341.Session) error {
			n, err := s.Write(addr, p)
			if err != nil {
				return err
			}
			fmt.Printf("%d bytes written\n", n)
			return nil
		})
	},
}

var writeReadCommand = &cli.Command{
	Name:      "writeread",
	Usage:     "write bytes, then read back",
	ArgsUsage: "<addr> <count> <hex bytes...>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 3 {
			return cli.Exit("usage: writeread <addr> <count> <hex bytes...>", 2)
		}
		args := c.Args().Slice()
		addr, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		n, err := parseLen(args[1])
		if err != nil {
			return err
		}
		w, err := parseBytes(args[2:])
		if err != nil {
			return err
		}
		return withSession(c, func(s *ch341.Session) error {
			r := make([]byte, n)
			if err := s.WriteRead(addr, w, r); err != nil {
				return err
			}
			fmt.Println(formatBytes(r))
			return nil
		})
	},
}

var hdcCommand = &cli.Command{
	Name:  "hdc1008",
	Usage: "identify an HDC1008 and take one measurement",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: "0x40", Usage: "sensor address"},
	},
	Action: func(c *cli.Context) error {
		addr, err := parseAddr(c.String("addr"))
		if err != nil {
			return err
		}
		return withSession(c, func(s *ch341.Session) error {
			sensor := hdc1008.New(s, addr)

			manuf, err := sensor.ManufacturerID()
			if err != nil {
				return err
			}
			fmt.Printf("manuf id %04x expected %04x\n", manuf, hdc1008.ManufacturerTI)
			dev, err := sensor.DeviceID()
			if err != nil {
				return err
			}
			fmt.Printf("device id %04x expected %04x\n", dev, hdc1008.DeviceHDC1008)
			if manuf != hdc1008.ManufacturerTI || dev != hdc1008.DeviceHDC1008 {
				return errors.Wrapf(hdc1008.ErrUnknownDevice, "at 0x%02x", addr)
			}

			m, err := sensor.Measure()
			if err != nil {
				return err
			}
			fmt.Printf("temperature %.2f C, humidity %.1f %%RH\n", m.Celsius, m.Humidity)
			return nil
		})
	},
}

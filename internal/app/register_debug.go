// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/bosch_imu/internal/bmi270"
	"github.com/relabs-tech/bosch_imu/internal/bmm150"
	"github.com/relabs-tech/bosch_imu/internal/bosch"
	"github.com/relabs-tech/bosch_imu/internal/imu"
	"github.com/relabs-tech/bosch_imu/internal/sensors"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RegisterAccess is what the register console needs from the IMU.
type RegisterAccess interface {
	imu.Source
	ReadRegisters(chip sensors.Chip, reg byte, buf []byte) error
	WriteRegisters(chip sensors.Chip, reg byte, buf []byte) error
	Initialize() error
}

// RegisterResponse is every message the console sends.
type RegisterResponse struct {
	Type        string            `json:"type"` // "register_data", "register_map", "status", "error", "export_config"
	Device      string            `json:"device,omitempty"`
	Address     string            `json:"addr,omitempty"`
	Value       string            `json:"value,omitempty"`
	Registers   map[string]string `json:"registers,omitempty"` // for bulk read
	Timestamp   string            `json:"timestamp,omitempty"`
	Message     string            `json:"message,omitempty"`
	Status      string            `json:"status,omitempty"`
	RegisterMap []RegisterInfo    `json:"register_map,omitempty"`
	Config      string            `json:"config,omitempty"`
	Filename    string            `json:"filename,omitempty"`
}

type RegisterInfo struct {
	Address     string           `json:"address"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Access      string           `json:"access"`
	BitFields   []bosch.BitField `json:"bit_fields,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// RegisterDebugServer serves the register console over a WebSocket and the
// live sample over REST.
type RegisterDebugServer struct {
	dev RegisterAccess
}

func NewRegisterDebugServer(dev RegisterAccess) *RegisterDebugServer {
	return &RegisterDebugServer{dev: dev}
}

// Routes registers the console endpoints on mux.
func (s *RegisterDebugServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/registers", s.HandleWS)
	mux.HandleFunc("/api/imu", s.HandleIMUData)
}

type registerSession struct {
	conn *websocket.Conn
	dev  RegisterAccess
}

// HandleWS handles the WebSocket connection for register debugging
func (s *RegisterDebugServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("register_debug: websocket upgrade failed")
		return
	}
	defer conn.Close()

	session := &registerSession{conn: conn, dev: s.dev}

	// Send the accel/gyro map on connection
	if err := session.sendRegisterMap(string(sensors.ChipBMI270)); err != nil {
		log.WithError(err).Warn("register_debug: sending register map")
		return
	}

	for {
		var rawMsg map[string]interface{}
		if err := conn.ReadJSON(&rawMsg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("register_debug: websocket error")
			}
			return
		}

		action, ok := rawMsg["action"].(string)
		if !ok {
			session.sendError("missing or invalid action field")
			continue
		}
		device, _ := rawMsg["device"].(string)
		if device == "" {
			device = string(sensors.ChipBMI270)
		}
		if _, ok := registerMap(device); !ok {
			session.sendError(fmt.Sprintf("unknown device: %s", device))
			continue
		}

		switch action {
		case "get_map":
			session.sendRegisterMap(device)
		case "read":
			session.handleRead(device, rawMsg)
		case "read_all":
			session.handleReadAll(device)
		case "write":
			session.handleWrite(device, rawMsg)
		case "init":
			session.handleInit()
		case "export_config":
			session.handleExportConfig(device)
		default:
			session.sendError(fmt.Sprintf("unknown action: %s", action))
		}
	}
}

func registerMap(device string) ([]bosch.RegisterInfo, bool) {
	switch sensors.Chip(device) {
	case sensors.ChipBMI270:
		return bmi270.RegisterMap(), true
	case sensors.ChipBMM150:
		return bmm150.RegisterMap(), true
	}
	return nil, false
}

func parseHexByte(s string) (byte, error) {
	var b byte
	if _, err := fmt.Sscanf(s, "0x%X", &b); err != nil {
		return 0, fmt.Errorf("invalid hex byte %q", s)
	}
	return b, nil
}

func (s *registerSession) readByte(device string, addr byte) (byte, error) {
	buf := []byte{0}
	if err := s.dev.ReadRegisters(sensors.Chip(device), addr, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (s *registerSession) handleRead(device string, rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	if addr == "" {
		s.sendError("missing addr field")
		return
	}
	addrByte, err := parseHexByte(addr)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}

	value, err := s.readByte(device, addrByte)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	s.send(RegisterResponse{
		Type:      "register_data",
		Device:    device,
		Address:   fmt.Sprintf("0x%02X", addrByte),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readAll reads every register of device whose access passes keep.
func (s *registerSession) readAll(device string, keep func(bosch.RegisterInfo) bool) (map[string]string, error) {
	regs, _ := registerMap(device)
	out := make(map[string]string)
	for _, r := range regs {
		if !keep(r) {
			continue
		}
		value, err := s.readByte(device, r.Address)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name, err)
		}
		out[r.Hex()] = fmt.Sprintf("0x%02X", value)
	}
	return out, nil
}

func (s *registerSession) handleReadAll(device string) {
	regMap, err := s.readAll(device, bosch.RegisterInfo.Readable)
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}
	s.send(RegisterResponse{
		Type:      "register_data",
		Device:    device,
		Registers: regMap,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *registerSession) handleWrite(device string, rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	valueStr, _ := rawMsg["value"].(string)
	if addr == "" || valueStr == "" {
		s.sendError("missing addr or value field")
		return
	}

	addrByte, err := parseHexByte(addr)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}
	valueByte, err := parseHexByte(valueStr)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", valueStr))
		return
	}

	regs, _ := registerMap(device)
	if r, ok := bosch.Lookup(regs, addrByte); !ok || !r.Writable() {
		s.sendError(fmt.Sprintf("register 0x%02X is not writable", addrByte))
		return
	}

	if err := s.dev.WriteRegisters(sensors.Chip(device), addrByte, []byte{valueByte}); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}
	log.WithFields(log.Fields{
		"device": device,
		"addr":   fmt.Sprintf("0x%02X", addrByte),
		"value":  fmt.Sprintf("0x%02X", valueByte),
	}).Info("register_debug: register written")

	s.send(RegisterResponse{
		Type:      "register_data",
		Device:    device,
		Address:   fmt.Sprintf("0x%02X", addrByte),
		Value:     fmt.Sprintf("0x%02X", valueByte),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	})
}

func (s *registerSession) handleInit() {
	if err := s.dev.Initialize(); err != nil {
		s.sendError(fmt.Sprintf("init error: %v", err))
		return
	}
	s.send(RegisterResponse{
		Type:    "status",
		Status:  "initialized",
		Message: "IMU reinitialized successfully",
	})
}

func (s *registerSession) handleExportConfig(device string) {
	regMap, err := s.readAll(device, func(r bosch.RegisterInfo) bool { return r.Access == "RW" })
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	now := time.Now()
	configJSON, err := json.Marshal(RegisterConfigFile{
		Version:   1,
		Device:    device,
		Timestamp: now.Format(time.RFC3339),
		Registers: regMap,
	})
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}
	s.send(RegisterResponse{
		Type:     "export_config",
		Device:   device,
		Message:  "config exported",
		Config:   string(configJSON),
		Filename: fmt.Sprintf("%s_%s_registers.json", device, now.Format("20060102_150405")),
	})
}

func (s *registerSession) sendRegisterMap(device string) error {
	regs, _ := registerMap(device)
	mapped := make([]RegisterInfo, len(regs))
	for i, r := range regs {
		mapped[i] = RegisterInfo{
			Address:     r.Hex(),
			Name:        r.Name,
			Description: r.Description,
			Access:      r.Access,
			BitFields:   r.BitFields,
		}
	}
	return s.conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      device,
		RegisterMap: mapped,
	})
}

func (s *registerSession) send(resp RegisterResponse) {
	if err := s.conn.WriteJSON(resp); err != nil {
		log.WithError(err).Debug("register_debug: write failed")
	}
}

func (s *registerSession) sendError(message string) {
	s.send(RegisterResponse{Type: "error", Message: message})
}

// HandleIMUData serves one live sample as JSON.
func (s *RegisterDebugServer) HandleIMUData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sample, err := s.dev.ReadSample()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": %q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	if err := json.NewEncoder(w).Encode(sample); err != nil {
		log.WithError(err).Warn("register_debug: json encode error")
	}
}

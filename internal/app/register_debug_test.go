package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/bosch_imu/internal/imu"
	"github.com/relabs-tech/bosch_imu/internal/sensors"
)

type fakeRegs struct {
	mu      sync.Mutex
	regs    map[sensors.Chip]map[byte]byte
	inits   int
	initErr error
	sample  imu.Sample
	readErr error
}

func newFakeRegs() *fakeRegs {
	return &fakeRegs{regs: map[sensors.Chip]map[byte]byte{
		sensors.ChipBMI270: {0x00: 0x24, 0x40: 0x98},
		sensors.ChipBMM150: {0x40: 0x32, 0x4C: 0x38},
	}}
}

func (f *fakeRegs) ReadRegisters(chip sensors.Chip, reg byte, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	for i := range buf {
		buf[i] = f.regs[chip][reg+byte(i)]
	}
	return nil
}

func (f *fakeRegs) WriteRegisters(chip sensors.Chip, reg byte, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range buf {
		f.regs[chip][reg+byte(i)] = b
	}
	return nil
}

func (f *fakeRegs) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeRegs) ReadSample() (imu.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, f.readErr
}

func (f *fakeRegs) reg(chip sensors.Chip, addr byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[chip][addr]
}

func dialConsole(t *testing.T, dev RegisterAccess) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	NewRegisterDebugServer(dev).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/registers"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	first := recv(t, conn)
	if first.Type != "register_map" || first.Device != "bmi270" {
		t.Fatalf("first message = %+v, want bmi270 register_map", first)
	}
	return conn
}

func recv(t *testing.T, conn *websocket.Conn) RegisterResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp RegisterResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return resp
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg map[string]string) RegisterResponse {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	return recv(t, conn)
}

func TestRegisterConsoleMaps(t *testing.T) {
	conn := dialConsole(t, newFakeRegs())

	resp := roundTrip(t, conn, map[string]string{"action": "get_map", "device": "bmm150"})
	if resp.Type != "register_map" || resp.Device != "bmm150" {
		t.Fatalf("resp = %+v", resp)
	}
	found := false
	for _, r := range resp.RegisterMap {
		if r.Address == "0x4C" && r.Name == "OP_MODE" && len(r.BitFields) > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("OP_MODE missing from bmm150 map: %+v", resp.RegisterMap)
	}

	resp = roundTrip(t, conn, map[string]string{"action": "get_map", "device": "mpu9250"})
	if resp.Type != "error" {
		t.Fatalf("unknown device resp = %+v", resp)
	}
}

func TestRegisterConsoleReadWrite(t *testing.T) {
	dev := newFakeRegs()
	conn := dialConsole(t, dev)

	resp := roundTrip(t, conn, map[string]string{"action": "read", "addr": "0x00"})
	if resp.Type != "register_data" || resp.Value != "0x24" {
		t.Fatalf("read CHIP_ID = %+v", resp)
	}

	resp = roundTrip(t, conn, map[string]string{"action": "write", "addr": "0x40", "value": "0xA8"})
	if resp.Type != "register_data" || resp.Message != "write successful" {
		t.Fatalf("write ACC_CONF = %+v", resp)
	}
	if got := dev.reg(sensors.ChipBMI270, 0x40); got != 0xA8 {
		t.Fatalf("ACC_CONF = %#x, want 0xA8", got)
	}

	resp = roundTrip(t, conn, map[string]string{"action": "read", "device": "bmm150", "addr": "0x4C"})
	if resp.Value != "0x38" || resp.Device != "bmm150" {
		t.Fatalf("read OP_MODE = %+v", resp)
	}
}

func TestRegisterConsoleRejectsReadOnlyWrites(t *testing.T) {
	dev := newFakeRegs()
	conn := dialConsole(t, dev)

	for name, msg := range map[string]map[string]string{
		"read-only":   {"action": "write", "addr": "0x00", "value": "0x00"},
		"unmapped":    {"action": "write", "addr": "0x7A", "value": "0x00"},
		"bad address": {"action": "write", "addr": "zz", "value": "0x00"},
		"no value":    {"action": "write", "addr": "0x40"},
		"mag data":    {"action": "write", "device": "bmm150", "addr": "0x42", "value": "0x01"},
	} {
		if resp := roundTrip(t, conn, msg); resp.Type != "error" {
			t.Errorf("%s: resp = %+v, want error", name, resp)
		}
	}
	if got := dev.reg(sensors.ChipBMI270, 0x00); got != 0x24 {
		t.Fatalf("CHIP_ID overwritten: %#x", got)
	}
}

func TestRegisterConsoleReadAll(t *testing.T) {
	conn := dialConsole(t, newFakeRegs())

	resp := roundTrip(t, conn, map[string]string{"action": "read_all", "device": "bmm150"})
	if resp.Type != "register_data" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Registers["0x40"] != "0x32" || resp.Registers["0x4C"] != "0x38" {
		t.Fatalf("registers = %v", resp.Registers)
	}
}

func TestRegisterConsoleExport(t *testing.T) {
	conn := dialConsole(t, newFakeRegs())

	resp := roundTrip(t, conn, map[string]string{"action": "export_config"})
	if resp.Type != "export_config" || !strings.HasPrefix(resp.Filename, "bmi270_") {
		t.Fatalf("resp = %+v", resp)
	}
	var file RegisterConfigFile
	if err := json.Unmarshal([]byte(resp.Config), &file); err != nil {
		t.Fatalf("config: %v", err)
	}
	if file.Registers["0x40"] != "0x98" {
		t.Fatalf("ACC_CONF = %q", file.Registers["0x40"])
	}
	if _, ok := file.Registers["0x00"]; ok {
		t.Fatal("read-only CHIP_ID exported")
	}
	if _, ok := file.Registers["0x7E"]; ok {
		t.Fatal("write-only CMD exported")
	}
}

func TestRegisterConsoleInit(t *testing.T) {
	dev := newFakeRegs()
	conn := dialConsole(t, dev)

	resp := roundTrip(t, conn, map[string]string{"action": "init"})
	if resp.Type != "status" || resp.Status != "initialized" {
		t.Fatalf("resp = %+v", resp)
	}

	dev.mu.Lock()
	dev.initErr = errors.New("imu: bmi270 init: Error [-3] : Device not found")
	dev.mu.Unlock()
	resp = roundTrip(t, conn, map[string]string{"action": "init"})
	if resp.Type != "error" || !strings.Contains(resp.Message, "[-3]") {
		t.Fatalf("resp = %+v", resp)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.inits != 2 {
		t.Fatalf("inits = %d", dev.inits)
	}
}

func TestRegisterConsoleUnknownAction(t *testing.T) {
	conn := dialConsole(t, newFakeRegs())
	if resp := roundTrip(t, conn, map[string]string{"action": "set_spi_speed"}); resp.Type != "error" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp := roundTrip(t, conn, map[string]string{"device": "bmi270"}); resp.Type != "error" {
		t.Fatalf("missing action resp = %+v", resp)
	}
}

func TestHandleIMUData(t *testing.T) {
	dev := newFakeRegs()
	dev.sample = imu.Sample{Az: 1, Gz: 1000, Mx: 5}
	srv := NewRegisterDebugServer(dev)

	rec := httptest.NewRecorder()
	srv.HandleIMUData(rec, httptest.NewRequest(http.MethodGet, "/api/imu", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got imu.Sample
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Az != 1 || got.Gz != 1000 || got.Mx != 5 {
		t.Fatalf("sample = %+v", got)
	}

	dev.readErr = errors.New("imu: read sample: Error [-2] : Communication failure")
	rec = httptest.NewRecorder()
	srv.HandleIMUData(rec, httptest.NewRequest(http.MethodGet, "/api/imu", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

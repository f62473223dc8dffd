package core

import (
	"testing"

	"piobroker/errcode"
	"piobroker/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(data *[]byte) error {
		called = true
		return nil
	})
	if id != 0 {
		t.Errorf("first command has ID %d, want 0", id)
	}
	if again := registry.Register("test_command", "arg=%u", nil); again != id {
		t.Errorf("re-registering returned ID %d", again)
	}

	cmd, ok := registry.Lookup(id)
	if !ok || cmd.Signature() != "test_command arg=%u" {
		t.Fatalf("Lookup = %+v, %v", cmd, ok)
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil || !called {
		t.Errorf("Dispatch: %v, called=%v", err, called)
	}
	if err := registry.Dispatch(999, &data); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("unknown command: got %v", err)
	}
}

func TestCommandRegistrySequentialIDs(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.RegisterResponse("response1", "val=%u")
	id3 := registry.Register("command2", "", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("IDs not sequential: %d, %d, %d", id1, id2, id3)
	}
	if registry.Count() != 3 {
		t.Errorf("Count = %d", registry.Count())
	}
	var data []byte
	if err := registry.Dispatch(id2, &data); err == nil {
		t.Error("dispatching a response should fail")
	}
	if cmd, ok := registry.LookupName("command2"); !ok || cmd.ID != 2 || cmd.Signature() != "command2" {
		t.Errorf("LookupName = %+v, %v", cmd, ok)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var received uint32
	id := registry.Register("test_args", "value=%u", func(data *[]byte) error {
		v, err := protocol.DecodeVLQUint(data)
		received = v
		return err
	})

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	if err := registry.Dispatch(id, &data); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if received != 12345 {
		t.Errorf("received %d", received)
	}
}

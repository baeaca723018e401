package logging

import "time"

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Component(name string) Field { return String("component", name) }

func Operation(op string) Field { return String("operation", op) }

func OperationID(id string) Field { return String("op_id", id) }

func Latency(d time.Duration) Field { return Duration("latency", d) }

// Scheme names the cipher scheme, e.g. "UVF_GCM".
func Scheme(name string) Field { return String("scheme", name) }

// Revision is a revolving masterkey seed revision.
func Revision(rev int32) Field { return Field{Key: "revision", Value: rev} }

func ChunkIndex(idx uint64) Field { return Uint64("chunk", idx) }

// Object is a backend object name.
func Object(name string) Field { return String("object", name) }

func Bytes(n int64) Field { return Int64("bytes", n) }

// KeyID identifies a keystore entry. Never pass key bytes.
func KeyID(id string) Field { return String("key_id", id) }

package resp

import "strings"

// Execute runs one decoded command against store and returns the encoded
// reply, per the command table of spec §4.8.
func Execute(store *Store, args []string) []byte {
	if len(args) == 0 {
		return ErrorReply("ERR empty command")
	}
	cmd := strings.ToUpper(args[0])

	switch cmd {
	case "PING":
		switch len(args) {
		case 1:
			return SimpleString("PONG")
		case 2:
			return BulkString(args[1])
		default:
			return ErrorReply("ERR wrong number of arguments for 'ping' command")
		}

	case "SET":
		if len(args) != 3 {
			return ErrorReply("ERR wrong number of arguments for 'set' command")
		}
		store.Set(args[1], args[2])
		return SimpleString("OK")

	case "GET":
		if len(args) != 2 {
			return ErrorReply("ERR wrong number of arguments for 'get' command")
		}
		v, ok := store.Get(args[1])
		if !ok {
			return NullBulkString()
		}
		return BulkString(v)

	case "DEL":
		if len(args) < 2 {
			return ErrorReply("ERR wrong number of arguments for 'del' command")
		}
		return Integer(int64(store.Del(args[1:]...)))

	case "KEYS":
		if len(args) != 2 {
			return ErrorReply("ERR wrong number of arguments for 'keys' command")
		}
		// Pattern argument is accepted but ignored, per spec §4.8.
		return Array(store.Keys())

	case "COMMAND":
		return EmptyArray()

	default:
		return ErrorReply("ERR unknown command '" + args[0] + "'")
	}
}

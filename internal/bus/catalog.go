// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

// Argument names shared across the catalog.
const (
	ArgTimestamp     = "timestamp"
	ArgCorrelation   = "correlation"
	ArgResult        = "result"
	ArgServerName    = "server_name"
	ArgServerPath    = "server_path"
	ArgNewName       = "new_name"
	ArgEngineVersion = "engine_version"
	ArgLoaderKind    = "loader_kind"
	ArgLoaderVersion = "loader_version"
	ArgMemoryMB      = "memory_mb"
	ArgAutostart     = "autostart"
	ArgAllowBugged   = "allow_bugged"
	ArgCommand       = "command"
	ArgFrom          = "from"
	ArgMessage       = "message"
	ArgPlayerName    = "player_name"
	ArgReason        = "reason"
	ArgExitCode      = "exit_code"
	ArgForced        = "forced"
	ArgLevel         = "level"
	ArgLine          = "line"
	ArgLines         = "lines"
)

// Reserved wire ids.
const (
	timestampArgID   uint8 = 0x00
	correlationArgID uint8 = 0xff
)

// Lifecycle requests.
const (
	ServerStart   Code = 0x0101
	ServerStop    Code = 0x0102
	ServerRestart Code = 0x0103
	ServerCreate  Code = 0x0104
	ServerDelete  Code = 0x0105
	ServerRename  Code = 0x0106
	ServerList    Code = 0x0107
	ServerPing    Code = 0x0108
	ServerInfo    Code = 0x0109
	ServerSeed    Code = 0x010a
)

// Console and player requests.
const (
	ConsoleSendCommand Code = 0x0201
	ConsoleSendMessage Code = 0x0202
	PlayerKick         Code = 0x0301
	PlayerBan          Code = 0x0302
	PlayerPardon       Code = 0x0303
	PlayerList         Code = 0x0304
)

// Catalog queries.
const (
	VersionsEngine Code = 0x0401
	VersionsLoader Code = 0x0402
)

// Notifications.
const (
	ServerStarting Code = 0x1101
	ServerStarted  Code = 0x1102
	ServerStopping Code = 0x1103
	ServerStopped  Code = 0x1104
	ServerCrashed  Code = 0x1105
	ServerCreated  Code = 0x1106
	ServerDeleted  Code = 0x1107
	ServerRenamed  Code = 0x1108

	ConsoleMessageReceived Code = 0x1201
	ConsoleLogReceived     Code = 0x1202
	ConsoleClosed          Code = 0x1203

	PlayerJoined   Code = 0x1301
	PlayerLeft     Code = 0x1302
	PlayerKicked   Code = 0x1303
	PlayerBanned   Code = 0x1304
	PlayerPardoned Code = 0x1305
)

var (
	argServer = ArgSpec{ID: 0x01, Name: ArgServerName, Kind: ArgString}
	argPlayer = ArgSpec{ID: 0x02, Name: ArgPlayerName, Kind: ArgString}
	argReason = ArgSpec{ID: 0x03, Name: ArgReason, Kind: ArgString}
)

func request(code Code, name string, returns ArgKind, args ...ArgSpec) Spec {
	return Spec{Code: code, Name: name, Kind: KindRequest, Args: args, Returns: returns}
}

func notification(code Code, name string, args ...ArgSpec) Spec {
	return Spec{Code: code, Name: name, Kind: KindNotification, Args: args}
}

// DefaultSpecs is the fleet control plane's event catalog.
func DefaultSpecs() []Spec {
	return []Spec{
		request(ServerStart, "server.start", ArgBool, argServer),
		request(ServerStop, "server.stop", ArgBool, argServer),
		request(ServerRestart, "server.restart", ArgBool, argServer),
		request(ServerCreate, "server.create", ArgBool,
			argServer,
			ArgSpec{ID: 0x02, Name: ArgServerPath, Kind: ArgString},
			ArgSpec{ID: 0x03, Name: ArgEngineVersion, Kind: ArgString},
			ArgSpec{ID: 0x04, Name: ArgLoaderKind, Kind: ArgString},
			ArgSpec{ID: 0x05, Name: ArgLoaderVersion, Kind: ArgString},
			ArgSpec{ID: 0x06, Name: ArgMemoryMB, Kind: ArgInt},
			ArgSpec{ID: 0x07, Name: ArgAutostart, Kind: ArgBool},
			ArgSpec{ID: 0x08, Name: ArgAllowBugged, Kind: ArgBool},
		),
		request(ServerDelete, "server.delete", ArgBool, argServer),
		request(ServerRename, "server.rename", ArgBool, argServer, ArgSpec{ID: 0x02, Name: ArgNewName, Kind: ArgString}),
		request(ServerList, "server.list", ArgAny),
		request(ServerPing, "server.ping", ArgString, argServer),
		request(ServerInfo, "server.info", ArgAny, argServer),
		request(ServerSeed, "server.seed", ArgString, argServer),

		request(ConsoleSendCommand, "console.send_command", ArgBool, argServer, ArgSpec{ID: 0x02, Name: ArgCommand, Kind: ArgString}),
		request(ConsoleSendMessage, "console.send_message", ArgBool,
			argServer,
			ArgSpec{ID: 0x02, Name: ArgFrom, Kind: ArgString},
			ArgSpec{ID: 0x03, Name: ArgMessage, Kind: ArgString},
		),
		request(PlayerKick, "player.kick", ArgBool, argServer, argPlayer, argReason),
		request(PlayerBan, "player.ban", ArgBool, argServer, argPlayer, argReason),
		request(PlayerPardon, "player.pardon", ArgBool, argServer, argPlayer),
		request(PlayerList, "player.list", ArgAny, argServer),

		request(VersionsEngine, "versions.engine", ArgAny),
		request(VersionsLoader, "versions.loader", ArgAny,
			ArgSpec{ID: 0x01, Name: ArgEngineVersion, Kind: ArgString},
			ArgSpec{ID: 0x02, Name: ArgLoaderKind, Kind: ArgString},
		),

		notification(ServerStarting, "server.starting", argServer),
		notification(ServerStarted, "server.started", argServer),
		notification(ServerStopping, "server.stopping", argServer),
		notification(ServerStopped, "server.stopped",
			argServer,
			ArgSpec{ID: 0x02, Name: ArgExitCode, Kind: ArgInt},
			ArgSpec{ID: 0x03, Name: ArgForced, Kind: ArgBool},
		),
		notification(ServerCrashed, "server.crashed",
			argServer,
			ArgSpec{ID: 0x02, Name: ArgExitCode, Kind: ArgInt},
			argReason,
		),
		notification(ServerCreated, "server.created",
			argServer,
			ArgSpec{ID: 0x02, Name: ArgServerPath, Kind: ArgString},
			ArgSpec{ID: 0x03, Name: ArgEngineVersion, Kind: ArgString},
		),
		notification(ServerDeleted, "server.deleted", argServer),
		notification(ServerRenamed, "server.renamed", argServer, ArgSpec{ID: 0x02, Name: ArgNewName, Kind: ArgString}),

		notification(ConsoleMessageReceived, "console.message_received",
			argServer, argPlayer,
			ArgSpec{ID: 0x03, Name: ArgMessage, Kind: ArgString},
		),
		notification(ConsoleLogReceived, "console.log_received",
			argServer,
			ArgSpec{ID: 0x02, Name: ArgLevel, Kind: ArgString},
			ArgSpec{ID: 0x03, Name: ArgLine, Kind: ArgString},
		),
		notification(ConsoleClosed, "console.closed", argServer, ArgSpec{ID: 0x02, Name: ArgLines, Kind: ArgInt}),

		notification(PlayerJoined, "player.joined", argServer, argPlayer),
		notification(PlayerLeft, "player.left", argServer, argPlayer),
		notification(PlayerKicked, "player.kicked", argServer, argPlayer, argReason),
		notification(PlayerBanned, "player.banned", argServer, argPlayer, argReason),
		notification(PlayerPardoned, "player.pardoned", argServer, argPlayer),
	}
}

// DefaultCatalog builds the catalog from DefaultSpecs. It panics on a
// malformed table, which is a programming error.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSpecs()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Package cli implements the chunkstore command-line client.
//
// Commands:
//
//	upload <sub_id> <file>...      send files in chunks, print final names
//	delete <sub_id> <name>         remove a file by its original name
//	get <sub_id> <filename> [dst]  download an assembled file ("-" for stdout)
//	token <sub_id>                 mint a submission token with the secret key
//
// Progress is drawn on stderr only when it is a terminal.
package cli

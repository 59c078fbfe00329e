// Package itemops implements the file operations behind each pipeline task.
//
// Layout on disk, relative to a project's directory:
//
//	<identifier>/                     raw scans as delivered by the scanner
//	<identifier>/<preservation_dir>/  renamed scans, <identifier>-0001.tif, ...
//	<identifier>/<derivative_type>/   one derivative per preservation scan
//
// The copy task mirrors the whole item directory to
// <scan_storage_location>/<project basename>/<identifier>, and the complete
// task verifies that mirror file by file. Every operation is safe to rerun
// after a partial failure.
package itemops

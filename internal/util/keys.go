package util

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// NullProject names the attribute slot used when no project is given.
const NullProject = "###null###"

// ProjectHash returns a short stable disambiguator for a project location.
func ProjectHash(location string) string {
	return strconv.FormatUint(xxhash.Sum64String(location), 16)
}

// AttributeName joins a gist id with its project disambiguator.
func AttributeName(gistID, projectHash string) string {
	return "gist@" + gistID + "@" + projectHash
}

// StorageKey is the provider key of one attribute value for one file.
func StorageKey(name string, version int, fileID uint32) string {
	return "attr:" + name + ":v" + strconv.Itoa(version) + ":" + strconv.FormatUint(uint64(fileID), 10)
}

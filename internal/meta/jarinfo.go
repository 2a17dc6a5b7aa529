// Package meta reports metadata of a built jar: manifest identity, the
// pipeline version stamp, the class file level and side marker counts.
//
// Goals:
//   - Best-effort: a missing or broken manifest leaves fields empty
//   - No class parsing beyond the fixed header
package meta

import (
	"encoding/binary"
	"strconv"
	"strings"

	"jarforge/internal/ziputil"
)

// VersionAttribute is the manifest main attribute carrying the pipeline
// version that produced a jar.
const VersionAttribute = "Jarforge-Pipeline-Version"

// Info is a summary of one jar.
type Info struct {
	Pipeline  string // value of VersionAttribute, "" if unstamped
	Module    string // Implementation-Title or Specification-Title
	Version   string // Implementation-Version or Specification-Version
	MainClass string
	JDK       string // highest class file level as a Java release, e.g. "8", "17"

	Entries    int
	Classes    int
	ClientOnly int
	ServerOnly int
	// Signed is set when signing metadata is still present.
	Signed bool
}

// Detect opens the jar at path and summarizes it.
func Detect(path string) (Info, error) {
	a, err := ziputil.Open(path)
	if err != nil {
		return Info{}, err
	}
	return Inspect(a), nil
}

// Inspect summarizes an archive already in memory.
func Inspect(a *ziputil.Archive) Info {
	inf := Info{Entries: a.Len()}
	if m, err := a.Manifest(); err == nil {
		get := func(k string) string { v, _ := m.Get(k); return v }
		inf.Pipeline = strings.TrimSpace(get(VersionAttribute))
		inf.Module = firstNonEmpty(get("Implementation-Title"), get("Specification-Title"))
		inf.Version = firstNonEmpty(get("Implementation-Version"), get("Specification-Version"))
		inf.MainClass = firstNonEmpty(get("Main-Class"))
	}

	var major uint16
	for _, p := range a.Paths() {
		e, _ := a.Get(p)
		switch e.Side {
		case ziputil.SideClient:
			inf.ClientOnly++
		case ziputil.SideServer:
			inf.ServerOnly++
		}
		if ziputil.IsSignatureFile(p) {
			inf.Signed = true
		}
		if !e.IsClass() {
			continue
		}
		inf.Classes++
		if v, ok := classMajor(e.Data); ok && v > major {
			major = v
		}
	}
	inf.JDK = javaRelease(major)
	return inf
}

// classMajor reads the major version from a class file header.
func classMajor(data []byte) (uint16, bool) {
	if len(data) < 8 || binary.BigEndian.Uint32(data) != 0xCAFEBABE {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[6:]), true
}

// javaRelease maps a class file major version to a Java release: 52 -> "8",
// 61 -> "17". Versions before 49 map to "1.x".
func javaRelease(major uint16) string {
	switch {
	case major < 45:
		return ""
	case major < 49:
		return "1." + strconv.Itoa(int(major)-44)
	}
	return strconv.Itoa(int(major) - 44)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return ""
}

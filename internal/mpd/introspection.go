package mpd

import "slices"

// Verbs the connection handler answers itself.
var connectionVerbs = []string{
	"close",
	"command_list_begin",
	"command_list_end",
	"command_list_ok_begin",
	"idle",
	"noidle",
}

var introspectionVerbs = []string{"commands", "decoders", "outputs", "tagtypes", "urlhandlers"}

// introspect answers capability queries that have no Command behind them.
// Unknown verbs yield no output.
func introspect(verb string, registry *Registry) []string {
	switch verb {
	case "urlhandlers":
		return []string{"handler: spotify:"}
	case "outputs":
		return []string{
			"outputid: 0",
			"outputname: default detected output",
			"plugin: pipe",
			"outputenabled: 1",
		}
	case "decoders":
		return []string{
			"plugin: ffmpeg",
			"suffix: ogg",
			"suffix: opus",
			"suffix: m4a",
			"suffix: webm",
			"mime_type: audio/ogg",
			"mime_type: audio/webm",
		}
	case "tagtypes":
		return []string{
			"tagtype: Artist",
			"tagtype: ArtistSort",
			"tagtype: Album",
			"tagtype: AlbumSort",
			"tagtype: AlbumArtist",
			"tagtype: AlbumArtistSort",
			"tagtype: Title",
			"tagtype: Track",
			"tagtype: Name",
			"tagtype: Genre",
			"tagtype: Date",
		}
	case "commands":
		verbs := slices.Concat(registry.Verbs(), introspectionVerbs, connectionVerbs)
		slices.Sort(verbs)
		lines := make([]string, 0, len(verbs))
		for _, v := range verbs {
			lines = append(lines, "command: "+v)
		}
		return lines
	}
	return nil
}

package resolver

import (
	"os"

	"github.com/bogem/id3v2"
)

// finishMetadata fills the track's title/artist from its ID3 tags, asks
// AudD to recognize the audio when tags are missing and a client is
// configured, and stamps the final values back onto the file. All of it
// is best effort; a track with no metadata is still a track.
func (r *Resolver) finishMetadata(track *Track) {
	tag, err := id3v2.Open(track.Path, id3v2.Options{Parse: true})
	if err != nil {
		r.log.WithError(err).Debug("cannot parse id3 tag")
		tag = nil
	}
	if tag != nil {
		if track.Title == "" {
			track.Title = tag.Title()
		}
		if track.Artist == "" {
			track.Artist = tag.Artist()
		}
	}

	if (track.Title == "" || track.Artist == "") && r.audd != nil {
		r.recognize(track)
	}

	if tag != nil {
		if track.Title != "" {
			tag.SetTitle(track.Title)
		}
		if track.Artist != "" {
			tag.SetArtist(track.Artist)
		}
		if err := tag.Save(); err != nil {
			r.log.WithError(err).Debug("cannot save id3 tag")
		}
		tag.Close()
	}
}

func (r *Resolver) recognize(track *Track) {
	file, err := os.Open(track.Path)
	if err != nil {
		return
	}
	defer file.Close()
	resp, err := r.audd.RecognizeByFile(file, "", nil)
	if err != nil {
		r.log.WithError(err).Debug("audd recognition failed")
		return
	}
	if track.Title == "" {
		track.Title = resp.Title
	}
	if track.Artist == "" {
		track.Artist = resp.Artist
	}
}

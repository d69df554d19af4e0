package i18n

import (
	"errors"

	"golang.org/x/text/language"

	"toonbot/internal/domain"
)

// The catalog ships English and Indonesian. Message slots are indexed by
// the matcher position of the user's locale; unknown locales match English.
var supported = []language.Tag{
	language.English,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

var phaseMessages = map[domain.Phase][2]string{
	domain.PhaseReceived: {
		"Got your photo! Warming up the drawing board.",
		"Foto kamu sudah diterima! Menyiapkan meja gambar.",
	},
	domain.PhaseUploading: {
		"Sending your photo off to the artist.",
		"Mengirim foto kamu ke sang seniman.",
	},
	domain.PhaseDownloading: {
		"The artwork is ready, collecting your files.",
		"Karyanya sudah jadi, sedang mengambil hasilnya.",
	},
	domain.PhaseDelivering: {
		"Here they come.",
		"Hasilnya sedang dikirim.",
	},
	domain.PhaseDone: {
		"Done! Send another photo any time.",
		"Selesai! Kirim foto lain kapan saja.",
	},
}

var (
	contentRejectedMsg = [2]string{
		"That photo did not pass moderation. Please try a different one.",
		"Foto itu tidak lolos moderasi. Coba foto yang lain ya.",
	}
	noFaceMsg = [2]string{
		"I could not find a face in that photo. Try a clearer portrait.",
		"Tidak ada wajah yang terdeteksi di foto itu. Coba potret yang lebih jelas.",
	}
	downloadFailedMsg = [2]string{
		"I could not download your results. Please try again later.",
		"Hasilnya gagal diunduh. Coba lagi nanti ya.",
	}
	unavailableMsg = [2]string{
		"The studio is swamped right now. Please try again later.",
		"Layanan sedang sibuk. Coba beberapa saat lagi.",
	}
	alreadyQueuedMsg = [2]string{
		"Your previous photo is still being drawn. Hang tight until it is finished.",
		"Foto kamu yang sebelumnya masih digambar. Tunggu sampai selesai ya.",
	}
	introMsg = [2]string{
		"Send me a portrait photo and I will return an anime style picture plus a short animation.",
		"Kirim foto potret dan aku akan membalas dengan gambar bergaya anime plus animasi pendek.",
	}
)

// Phase returns the progress message announced when a job enters phase.
func Phase(locale string, phase domain.Phase) string {
	msgs, ok := phaseMessages[phase]
	if !ok {
		return ""
	}
	return msgs[index(locale)]
}

// Failure maps a pipeline error to the message shown to the user. Errors
// outside the domain taxonomy read as a generic unavailability notice.
func Failure(locale string, err error) string {
	i := index(locale)
	switch {
	case errors.Is(err, domain.ErrContentRejected):
		return contentRejectedMsg[i]
	case errors.Is(err, domain.ErrNoFace):
		return noFaceMsg[i]
	case errors.Is(err, domain.ErrDownloadFailed):
		return downloadFailedMsg[i]
	case errors.Is(err, domain.ErrAlreadyQueued):
		return alreadyQueuedMsg[i]
	default:
		return unavailableMsg[i]
	}
}

// AlreadyQueued is the rejection shown while a previous job is in flight.
func AlreadyQueued(locale string) string {
	return Failure(locale, domain.ErrAlreadyQueued)
}

// Intro greets new users and answers non-photo messages.
func Intro(locale string) string {
	return introMsg[index(locale)]
}

func index(locale string) int {
	tag, err := language.Parse(locale)
	if err != nil {
		return 0
	}
	_, i, _ := matcher.Match(tag)
	return i
}

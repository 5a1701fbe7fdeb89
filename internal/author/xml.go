package author

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/dvdmaker/dvdmaker/internal/config"
	"github.com/dvdmaker/dvdmaker/internal/models"
)

// dvdauthor control file structure. Element order inside a pgc matters
// to dvdauthor: buttons, then vobs, then pre/post commands.
type authoringDoc struct {
	XMLName  xml.Name    `xml:"dvdauthor"`
	Dest     string      `xml:"dest,attr"`
	Jumppad  string      `xml:"jumppad,attr,omitempty"`
	VMGM     menusDoc    `xml:"vmgm>menus"`
	Titleset titlesetDoc `xml:"titleset"`
}

type titlesetDoc struct {
	Menus  *menusDoc `xml:"menus,omitempty"`
	Titles titlesDoc `xml:"titles"`
}

type menusDoc struct {
	Video      videoSpec      `xml:"video"`
	Audio      audioSpec      `xml:"audio"`
	Subpicture subpictureSpec `xml:"subpicture"`
	PGC        pgcDoc         `xml:"pgc"`
}

type titlesDoc struct {
	Video videoSpec `xml:"video"`
	Audio audioSpec `xml:"audio"`
	PGC   pgcDoc    `xml:"pgc"`
}

type videoSpec struct {
	Format     string `xml:"format,attr"`
	Aspect     string `xml:"aspect,attr"`
	Widescreen string `xml:"widescreen,attr,omitempty"`
}

type audioSpec struct {
	Lang string `xml:"lang,attr"`
}

type subpictureSpec struct {
	Lang    string       `xml:"lang,attr"`
	Streams []streamSpec `xml:"stream"`
}

type streamSpec struct {
	ID   string `xml:"id,attr"`
	Mode string `xml:"mode,attr"`
}

type pgcDoc struct {
	Entry   string      `xml:"entry,attr,omitempty"`
	Buttons []buttonDoc `xml:"button"`
	Vobs    []vobDoc    `xml:"vob"`
	Pre     string      `xml:"pre,omitempty"`
	Post    string      `xml:"post,omitempty"`
}

type buttonDoc struct {
	Name    string `xml:"name,attr"`
	Command string `xml:",chardata"`
}

type vobDoc struct {
	File     string `xml:"file,attr"`
	Chapters string `xml:"chapters,attr,omitempty"`
	Pause    string `xml:"pause,attr,omitempty"`
}

// Navigation commands mirror the register conventions DVDStyler uses:
// g0 selects the post-menu action and g1 tracks the active menu for
// the "call menu entry root" round trip out of the title.
const (
	cmdPlayTitle     = "g0=1;jump title 1;"
	cmdOpenChapters  = "g0=0;jump titleset 1 menu;"
	cmdBackToVMGM    = "g0=0;jump vmgm menu 1;"
	cmdVMGMEntry     = "g1=101;"
	cmdChapterMenu   = "if (g1 & 0x8000 !=0) {g1^=0x8000;if (g1==101) jump vmgm menu 1;}g1=1;"
	cmdTitleFinished = "g1|=0x8000; call menu entry root;"
)

// maxChapterButtons limits the chapter menu to one screen of buttons.
const maxChapterButtons = 6

// videoSpecFor builds a <video> element for the given aspect ratio.
// Widescreen discs disable pan-scan so players letterbox instead.
func videoSpecFor(settings config.Settings, aspect string) videoSpec {
	spec := videoSpec{
		Format: strings.ToLower(settings.VideoFormat),
		Aspect: aspect,
	}
	if aspect == "16:9" {
		spec.Widescreen = "nopanscan"
	}
	return spec
}

func subpictureFor(aspect string) subpictureSpec {
	sub := subpictureSpec{Lang: "EN"}
	if aspect == "16:9" {
		sub.Streams = []streamSpec{
			{ID: "0", Mode: "widescreen"},
			{ID: "1", Mode: "letterbox"},
		}
	} else {
		sub.Streams = []streamSpec{{ID: "0", Mode: "normal"}}
	}
	return sub
}

// buildAuthoringDoc assembles the dvdauthor control document for a DVD
// with a single title and DVDStyler-style menu navigation. vmgmMenu and
// chapterMenu are the pre-rendered menu clips; chapterMenu is empty for
// single-chapter discs, which get no titleset menu. titleVobs are the
// chapter video files in playback order.
func buildAuthoringDoc(settings config.Settings, structure models.DVDStructure, videoTSDir, vmgmMenu, chapterMenu string, titleVobs []string) authoringDoc {
	doc := authoringDoc{Dest: videoTSDir}
	if settings.Autoplay {
		// jumppad=0 keeps the First Play chain so the disc starts
		// without waiting at the menu.
		doc.Jumppad = "0"
	}

	// Some car head units only handle 4:3 VMGM menus.
	vmgmAspect := settings.AspectRatio
	if settings.CarDVDCompatibility {
		vmgmAspect = "4:3"
	}

	vmgmPGC := pgcDoc{
		Entry:   "title",
		Buttons: []buttonDoc{{Name: "button01", Command: cmdPlayTitle}},
		Vobs:    []vobDoc{{File: vmgmMenu, Pause: "inf"}},
		Pre:     cmdVMGMEntry,
	}
	multiChapter := structure.ChapterCount() > 1
	if multiChapter {
		vmgmPGC.Buttons = append(vmgmPGC.Buttons,
			buttonDoc{Name: "button02", Command: cmdOpenChapters})
	}
	doc.VMGM = menusDoc{
		Video:      videoSpecFor(settings, vmgmAspect),
		Audio:      audioSpec{Lang: "EN"},
		Subpicture: subpictureFor(vmgmAspect),
		PGC:        vmgmPGC,
	}

	if multiChapter {
		menuPGC := pgcDoc{Entry: "ptt,root"}
		buttons := structure.ChapterCount()
		if buttons > maxChapterButtons {
			buttons = maxChapterButtons
		}
		for i := 1; i <= buttons; i++ {
			menuPGC.Buttons = append(menuPGC.Buttons, buttonDoc{
				Name:    fmt.Sprintf("button%02d", i),
				Command: fmt.Sprintf("g0=0;jump title 1 chapter %d;", i),
			})
		}
		menuPGC.Buttons = append(menuPGC.Buttons,
			buttonDoc{Name: "button07", Command: cmdBackToVMGM})
		menuPGC.Vobs = []vobDoc{{File: chapterMenu, Pause: "inf"}}
		menuPGC.Pre = cmdChapterMenu

		doc.Titleset.Menus = &menusDoc{
			Video:      videoSpecFor(settings, settings.AspectRatio),
			Audio:      audioSpec{Lang: "EN"},
			Subpicture: subpictureFor(settings.AspectRatio),
			PGC:        menuPGC,
		}
	}

	titlePGC := pgcDoc{}
	for _, file := range titleVobs {
		titlePGC.Vobs = append(titlePGC.Vobs, vobDoc{File: file, Chapters: "0:00"})
	}
	if multiChapter {
		titlePGC.Post = cmdTitleFinished
	}
	doc.Titleset.Titles = titlesDoc{
		Video: videoSpecFor(settings, settings.AspectRatio),
		Audio: audioSpec{Lang: "EN"},
		PGC:   titlePGC,
	}
	return doc
}

// writeAuthoringDoc writes the control document as indented XML.
func writeAuthoringDoc(doc authoringDoc, path string) error {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dvdauthor XML: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dvdauthor XML: %w", err)
	}
	return nil
}

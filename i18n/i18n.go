// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2022 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package i18n

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/snapcore/go-gettext"
)

// TEXTDOMAIN is the message domain used by flametrace; see dgettext(3)
// for more information.
var TEXTDOMAIN = "flametrace"

var (
	locale       gettext.Catalog
	translations gettext.Translations
)

func init() {
	bindTextDomain(TEXTDOMAIN, "/usr/share/locale")
}

func moResolver(root, locale, domain string) string {
	filename := filepath.Join(root, locale, "LC_MESSAGES", domain+".mo")
	if _, err := os.Stat(filename); err != nil {
		return ""
	}
	return filename
}

func bindTextDomain(domain, dir string) {
	translations = gettext.NewTranslations(dir, domain, moResolver)
	setLocale("")
}

func localeFromEnv() string {
	loc := os.Getenv("LC_MESSAGES")
	if loc == "" {
		loc = os.Getenv("LC_ALL")
	}
	if loc == "" {
		loc = os.Getenv("LANG")
	}
	return loc
}

func simplifyLocale(loc string) string {
	// de_DE.UTF-8, de_DE@euro all need to get simplified
	loc = strings.Split(loc, "@")[0]
	loc = strings.Split(loc, ".")[0]
	return loc
}

func setLocale(loc string) {
	if loc == "" {
		loc = localeFromEnv()
	}
	locale = translations.Locale(simplifyLocale(loc))
}

// G is the shorthand for Gettext
func G(msgid string) string {
	return locale.Gettext(msgid)
}

// NG is the shorthand for NGettext
func NG(msgid string, msgidPlural string, n uint32) string {
	return locale.NGettext(msgid, msgidPlural, n)
}

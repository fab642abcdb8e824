package content

import (
	"fmt"

	"github.com/brahman47/breakyourbelljar/domain"
)

// excerptProjection derives the same excerpt as domain.Excerpt on the API side.
var excerptProjection = fmt.Sprintf(
	`"excerpt": select(length(pt::text(body)) > %[1]d => array::join(string::split(pt::text(body), "")[0...%[1]d], "") + "...", pt::text(body))`,
	domain.ExcerptLength,
)

const imageProjection = `{
    asset->{
      _id,
      url
    },
    alt,
    caption
  }`

var cardProjection = `{
  _id,
  title,
  slug,
  publishedAt,
  featured,
  mainImage ` + imageProjection + `,
  author->{
    name,
    image
  },
  categories[]->{
    title,
    slug
  },
  ` + excerptProjection + `
}`

var (
	postsQuery = `*[_type == "post" && defined(slug.current)] | order(publishedAt desc) ` + cardProjection

	featuredPostQuery = `*[_type == "post" && featured == true && defined(slug.current)] | order(publishedAt desc)[0] ` + cardProjection

	postsInCategoryQuery = `*[_type == "post" && defined(slug.current) && $category in categories[]->slug.current] | order(publishedAt desc) ` + cardProjection

	postQuery = `*[_type == "post" && slug.current == $slug][0] {
  _id,
  title,
  slug,
  publishedAt,
  mainImage ` + imageProjection + `,
  gallery[] ` + imageProjection + `,
  author->{
    name,
    image
  },
  categories[]->{
    title,
    slug
  },
  body,
  ` + excerptProjection + `
}`
)

const (
	categoryQuery = `*[_type == "category" && slug.current == $slug][0] {
  title,
  slug,
  description
}`

	postSlugsQuery = `*[_type == "post" && defined(slug.current)].slug.current`
)
